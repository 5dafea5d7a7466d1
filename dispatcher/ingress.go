// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/store"
)

// Sentinel pre-check errors, spec §4.5.1 step 1. A CLA receive loop seeing
// ErrNeedMoreData should keep reading before retrying Ingress.
var (
	ErrNeedMoreData     = errors.New("dispatcher: need more data")
	ErrMisversionedBPv6 = errors.New("dispatcher: first byte 0x06 looks like a BPv6 bundle, not BPv7")
	ErrNotCBORArray     = errors.New("dispatcher: first byte is not a CBOR array start")
)

// Ingress runs spec §4.5.1: pre-check, parse, duplicate suppression,
// Reception status report, and dispatch-loop entry. raw is a single
// complete bundle's wire bytes (CLA framing, if any, has already been
// stripped by the caller).
func (d *Dispatcher) Ingress(raw []byte) error {
	if err := preCheck(raw); err != nil {
		return err
	}

	result := bpv7.ParseBundle(raw, d.sec)
	if result.Outcome == bpv7.Invalid {
		d.recordSkeletal(raw, result)
		return fmt.Errorf("dispatcher: invalid bundle: %w", result.Err)
	}

	data := raw
	nonCanonical := result.Outcome == bpv7.Rewritten
	if nonCanonical {
		data = result.NewBytes
	}

	id := result.Bundle.ID()
	inserted, err := d.store.Insert(id, data, nonCanonical)
	if err != nil {
		return fmt.Errorf("dispatcher: storing ingress bundle: %w", err)
	}
	if !inserted {
		log.WithField("id", id.String()).Debug("dispatcher: duplicate bundle suppressed at ingress")
		return nil
	}

	d.maybeEmitReceptionReport(result.Bundle, result.ReportUnsupported)

	meta, err := d.store.Metadata.GetMetadata(id.String())
	if err != nil {
		return fmt.Errorf("dispatcher: reloading just-inserted metadata: %w", err)
	}
	d.dispatch(meta, result.Bundle)
	return nil
}

// preCheck implements the fast first-byte classification of §4.5.1 step 1.
// A leading CBOR self-describe tag (0xd9 0xd9 0xf7) is not expected on the
// wire this agent's CLAs use and is rejected here rather than tolerated, even
// though bpv7.ParseBundle itself accepts one.
func preCheck(raw []byte) error {
	if len(raw) == 0 {
		return ErrNeedMoreData
	}
	switch b := raw[0]; {
	case b == 0x06:
		return ErrMisversionedBPv6
	case b < 0x80 || b > 0x9f:
		return ErrNotCBORArray
	default:
		return nil
	}
}

// recordSkeletal persists a content-hash-keyed tombstone for a bundle that
// failed to parse at all, so a byte-identical retry is suppressed the same
// way a successfully parsed duplicate would be. A real BundleID cannot be
// derived from an Invalid parse, so the hash of the raw bytes stands in for
// bundle identity here.
func (d *Dispatcher) recordSkeletal(raw []byte, result bpv7.ParseResult) {
	sum := sha256.Sum256(raw)
	id := "invalid:" + hex.EncodeToString(sum[:])

	_, err := d.store.Metadata.InsertMetadata(store.BundleMetadata{
		Id:             id,
		Status:         store.StatusTombstone,
		ReceivedAt:     time.Now(),
		Hash:           sum[:],
		TombstoneUntil: time.Now().Add(d.cfg.TombstoneLifetime),
	})
	if err != nil {
		log.WithError(err).Warn("dispatcher: failed to record skeletal invalid-bundle metadata")
	}
	log.WithField("reason", result.Reason).WithField("err", result.Err).Info("dispatcher: rejected invalid bundle at ingress")
}
