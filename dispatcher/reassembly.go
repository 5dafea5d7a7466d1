// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"bytes"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/store"
)

// reassemble implements the ADU reassembly step of §4.5.2. ok is true and
// err is nil in three cases: bndl was not a fragment (returned unchanged),
// the fragment belongs to another node and is passed through unchanged, or
// every sibling fragment has arrived and reassembled is the whole bundle.
// ok is false with a nil error when more fragments are still needed.
//
// The store has no index over (source, creation_timestamp, total_length),
// so siblings are found by scanning every stored metadata record; fine for
// the fragment counts one hop of this protocol produces, not a query that
// would scale to a large persistent store.
func (d *Dispatcher) reassemble(_ store.BundleMetadata, bndl *bpv7.Bundle) (*bpv7.Bundle, store.BundleMetadata, bool, error) {
	id := bndl.ID()
	if !id.IsFragment {
		return bndl, store.BundleMetadata{}, true, nil
	}
	if !bndl.Primary.Source.SameNode(d.cfg.LocalNode) {
		return bndl, store.BundleMetadata{}, true, nil
	}

	all, err := d.store.Metadata.All()
	if err != nil {
		return nil, store.BundleMetadata{}, false, err
	}

	type frag struct {
		meta store.BundleMetadata
		bndl *bpv7.Bundle
	}
	var siblings []frag
	for _, m := range all {
		if m.Status == store.StatusTombstone {
			continue
		}
		raw, err := d.store.Bundles.Load(m.StorageName)
		if err != nil {
			continue
		}
		result := bpv7.ParseBundle(raw, d.sec)
		if result.Outcome == bpv7.Invalid {
			continue
		}
		sid := result.Bundle.ID()
		if !sid.IsFragment || !sid.Source.Equal(id.Source) ||
			sid.CreationTimestamp != id.CreationTimestamp || sid.TotalDataLength != id.TotalDataLength {
			continue
		}
		siblings = append(siblings, frag{meta: m, bndl: result.Bundle})
	}
	if len(siblings) == 0 {
		return nil, store.BundleMetadata{}, false, nil
	}

	sort.Slice(siblings, func(i, j int) bool {
		return siblings[i].bndl.Primary.Fragment.Offset < siblings[j].bndl.Primary.Fragment.Offset
	})

	covered := uint64(0)
	for _, f := range siblings {
		off := f.bndl.Primary.Fragment.Offset
		if off > covered {
			return nil, store.BundleMetadata{}, false, nil // gap: more fragments needed
		}
		payload, ok := f.bndl.PayloadBlock()
		if !ok {
			return nil, store.BundleMetadata{}, false, fmt.Errorf("dispatcher: fragment %s has no payload block", f.bndl.ID())
		}
		if end := off + uint64(len(payload.Data)); end > covered {
			covered = end
		}
	}
	if covered < id.TotalDataLength {
		return nil, store.BundleMetadata{}, false, nil
	}

	full := make([]byte, id.TotalDataLength)
	for _, f := range siblings {
		payload, _ := f.bndl.PayloadBlock()
		off := f.bndl.Primary.Fragment.Offset
		copy(full[off:], payload.Data)
	}

	// Blocks flagged must-replicate appear identically in every fragment,
	// RFC 9171 §4.4; taking them from the lowest-offset fragment is valid.
	first := siblings[0].bndl
	primary := first.Primary
	primary.Flags &^= bpv7.IsFragment
	primary.Fragment = nil

	var extensions []bpv7.Block
	for _, b := range first.Blocks {
		if b.Type != bpv7.BlockTypePayload {
			extensions = append(extensions, b)
		}
	}
	reassembled := &bpv7.Bundle{
		Primary: primary,
		Blocks:  append(extensions, bpv7.NewBlock(bpv7.BlockTypePayload, 1, 0, full)),
	}

	var buf bytes.Buffer
	if err := reassembled.MarshalCBOR(&buf); err != nil {
		return nil, store.BundleMetadata{}, false, err
	}

	verify := bpv7.ParseBundle(buf.Bytes(), d.sec)
	if verify.Outcome == bpv7.Invalid {
		for _, f := range siblings {
			_ = d.store.Tombstone(f.meta, d.cfg.TombstoneLifetime)
		}
		return nil, store.BundleMetadata{}, false, fmt.Errorf("dispatcher: reassembled bundle is invalid: %w", verify.Err)
	}

	data := buf.Bytes()
	if verify.Outcome == bpv7.Rewritten {
		data = verify.NewBytes
	}

	for _, f := range siblings {
		if err := d.store.Bundles.Remove(f.meta.StorageName); err != nil {
			log.WithError(err).Warn("dispatcher: failed to remove reassembled fragment bytes")
		}
		if err := d.store.Metadata.RemoveMetadata(f.meta.Id); err != nil {
			log.WithError(err).Warn("dispatcher: failed to remove reassembled fragment metadata")
		}
	}

	newID := verify.Bundle.ID()
	if _, err := d.store.Insert(newID, data, verify.Outcome == bpv7.Rewritten); err != nil {
		return nil, store.BundleMetadata{}, false, err
	}
	newMeta, err := d.store.Metadata.GetMetadata(newID.String())
	if err != nil {
		return nil, store.BundleMetadata{}, false, err
	}
	return verify.Bundle, newMeta, true, nil
}
