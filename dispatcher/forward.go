// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"bytes"
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/rib"
	"github.com/hardy-dtn/bpa-go/store"
)

// forward runs spec §4.5.3 for a bundle the RIB has already matched to the
// ECMP-shuffled candidate list clas. It blocks the calling goroutine for as
// long as retries and congestion waits require, cooperating with
// Dispatcher.stop for cancellation.
func (d *Dispatcher) forward(meta store.BundleMetadata, bndl *bpv7.Bundle, clas []string) {
	destination := bndl.Primary.Destination
	retries := 0

	for {
		if len(clas) == 0 {
			retries++
			if retries > d.cfg.MaxForwardingDelay {
				fallback, ok := fallbackDestination(bndl)
				if !ok {
					d.drop(meta, bndl, bpv7.ReasonDestinationEIDUnintelligible)
					return
				}
				res, err := d.rib.Find(fallback)
				if err != nil || res.Kind != rib.ResultForward || len(res.CLAs) == 0 {
					d.drop(meta, bndl, bpv7.ReasonNoKnownRouteToDestination)
					return
				}
				destination, clas, retries = fallback, res.CLAs, 0
				continue
			}
			if d.sleep(time.Second) == sleepCancelled {
				return
			}
			if res, err := d.rib.Find(destination); err == nil && res.Kind == rib.ResultForward {
				clas = res.CLAs
			}
			continue
		}

		var softest time.Time
		if d.tryForward(meta, bndl, clas, &softest) {
			return
		}

		if !softest.IsZero() {
			if d.waitUntil(meta, softest) == sleepCancelled {
				return
			}
			if res, err := d.rib.Find(destination); err == nil && res.Kind == rib.ResultForward {
				clas = res.CLAs
			} else {
				clas = nil
			}
			retries = 0
			continue
		}

		// Every candidate errored outright; fall through to the no-candidate
		// branch above, which paces retries at 1s.
		clas = nil
	}
}

// tryForward attempts each candidate address in order, returning true once
// the bundle's disposition is settled (forwarded, or awaiting a later
// acknowledgement). If every candidate is merely congested, softest is updated to
// the earliest time any of them offered to retry and tryForward returns
// false so the caller can wait and re-resolve.
func (d *Dispatcher) tryForward(meta store.BundleMetadata, bndl *bpv7.Bundle, clas []string, softest *time.Time) bool {
	for _, addr := range clas {
		data, err := d.materialiseForward(bndl, meta)
		if err != nil {
			log.WithError(err).Warn("dispatcher: failed to materialise outbound bundle")
			continue
		}

		outcome, err := d.clas.ForwardBundle(context.Background(), addr, data)
		if err != nil {
			log.WithError(err).WithField("cla", addr).Debug("dispatcher: forward attempt failed, trying next candidate")
			continue
		}

		switch {
		case outcome.Token != "":
			until := outcome.Until
			if until.IsZero() {
				until = time.Now().Add(d.cfg.ForwardAckDefaultWindow)
			}
			if cap := expiryDeadline(bndl); until.After(cap) {
				until = cap
			}
			if err := d.store.Metadata.UpdateStatus(meta.Id, store.StatusForwardAckPending, outcome.Token, until); err != nil {
				log.WithError(err).Warn("dispatcher: failed to record forward-ack-pending status")
			}
			return true

		case outcome.Congested:
			if softest.IsZero() || outcome.Until.Before(*softest) {
				*softest = outcome.Until
			}
			continue

		default:
			d.maybeEmitStatusReport(bndl, bpv7.ForwardedBundle, bpv7.ReasonNoAdditionalInformation)
			if err := d.store.Tombstone(meta, d.cfg.TombstoneLifetime); err != nil {
				log.WithError(err).Warn("dispatcher: failed to tombstone forwarded bundle")
			}
			return true
		}
	}
	return false
}

// fallbackDestination is the previous_node/source fallback of §4.5.3's final
// paragraph.
func fallbackDestination(bndl *bpv7.Bundle) (bpv7.EID, bool) {
	if eid, present, err := bndl.PreviousNodeEID(); err == nil && present && !eid.IsNull() {
		return eid, true
	}
	if !bndl.Primary.Source.IsNull() {
		return bndl.Primary.Source, true
	}
	return bpv7.EID{}, false
}

// materialiseForward computes this attempt's outbound bundle bytes:
// PreviousNode is replaced/inserted with this node's identity, a present
// HopCount is bumped, and BundleAge is refreshed when the bundle carries no
// accurate creation time, per §4.5.3.
func (d *Dispatcher) materialiseForward(bndl *bpv7.Bundle, meta store.BundleMetadata) ([]byte, error) {
	out := *bndl
	out.Blocks = append([]bpv7.Block(nil), bndl.Blocks...)

	var maxNum uint64
	for _, b := range out.Blocks {
		if b.BlockNumber > maxNum {
			maxNum = b.BlockNumber
		}
	}

	out.Blocks = upsertExtension(out.Blocks, bpv7.BlockTypePreviousNode, bpv7.SetPreviousNodeEID(d.cfg.LocalNode), &maxNum)

	if limit, count, present, err := out.HopCount(); err == nil && present {
		if i := extensionIndex(out.Blocks, bpv7.BlockTypeHopCount); i >= 0 {
			out.Blocks[i].Data = bpv7.EncodeHopCount(limit, count+1)
		}
	}

	if out.Primary.CreationTimestamp.IsZeroTime() {
		var age uint64
		if existing, present, err := out.BundleAge(); err == nil && present {
			age = existing
		}
		age += uint64(time.Since(meta.ReceivedAt).Milliseconds())
		out.Blocks = upsertExtension(out.Blocks, bpv7.BlockTypeBundleAge, bpv7.EncodeBundleAge(age), &maxNum)
	}

	var buf bytes.Buffer
	if err := out.MarshalCBOR(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extensionIndex(blocks []bpv7.Block, t bpv7.BlockType) int {
	for i, b := range blocks {
		if b.Type == t {
			return i
		}
	}
	return -1
}

// upsertExtension replaces the Data of an existing block of type t, or
// inserts a fresh one (with the next free block number) just ahead of the
// payload block, which must stay last.
func upsertExtension(blocks []bpv7.Block, t bpv7.BlockType, data []byte, maxNum *uint64) []bpv7.Block {
	if i := extensionIndex(blocks, t); i >= 0 {
		blocks[i].Data = data
		return blocks
	}

	*maxNum++
	blk := bpv7.NewBlock(t, *maxNum, 0, data)
	if len(blocks) == 0 {
		return []bpv7.Block{blk}
	}
	out := make([]bpv7.Block, 0, len(blocks)+1)
	out = append(out, blocks[:len(blocks)-1]...)
	out = append(out, blk, blocks[len(blocks)-1])
	return out
}
