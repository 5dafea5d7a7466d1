// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

func testBundleBytes(t *testing.T) (bpv7.Bundle, []byte) {
	t.Helper()
	b := bpv7.Bundle{
		Primary: bpv7.PrimaryBlock{
			Flags:             bpv7.DoNotFragment,
			CRCType:           bpv7.CRCNone,
			Destination:       bpv7.MustParseEID("dtn://dest/"),
			Source:            bpv7.MustParseEID("dtn://src/"),
			ReportTo:          bpv7.Null(),
			CreationTimestamp: bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 1),
			Lifetime:          600000,
		},
		Blocks: []bpv7.Block{bpv7.NewBlock(bpv7.BlockTypePayload, 1, 0, []byte("hello world"))},
	}

	var buf bytes.Buffer
	if err := b.MarshalCBOR(&buf); err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	return b, buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		if closer, ok := s.Metadata.(*BadgerMetadataStorage); ok {
			_ = closer.Close()
		}
	})
	return s
}

func TestInsertDuplicateSuppression(t *testing.T) {
	s := newTestStore(t)
	b, raw := testBundleBytes(t)

	ok, err := s.Insert(b.ID(), raw, false)
	if err != nil || !ok {
		t.Fatalf("first Insert = %v, %v", ok, err)
	}

	ok, err = s.Insert(b.ID(), raw, false)
	if err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if ok {
		t.Error("expected duplicate insert to be rejected")
	}
}

func TestTombstoneBlocksReinsertion(t *testing.T) {
	s := newTestStore(t)
	b, raw := testBundleBytes(t)

	if _, err := s.Insert(b.ID(), raw, false); err != nil {
		t.Fatal(err)
	}

	meta, err := s.Metadata.GetMetadata(b.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Tombstone(meta, time.Hour); err != nil {
		t.Fatal(err)
	}

	if ok, err := s.Insert(b.ID(), raw, false); err != nil || ok {
		t.Fatalf("expected tombstoned identity to reject reinsertion, got %v, %v", ok, err)
	}
}

func TestPollWaitingEmitsDueRecords(t *testing.T) {
	s := newTestStore(t)
	b, raw := testBundleBytes(t)

	if _, err := s.Insert(b.ID(), raw, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Metadata.UpdateStatus(b.ID().String(), StatusWaiting, "", time.Now().Add(10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	out := make(chan BundleMetadata, 1)
	stop := make(chan struct{})
	go s.PollWaiting(out, stop)
	defer close(stop)

	select {
	case meta := <-out:
		if meta.Id != b.ID().String() {
			t.Errorf("got %q, want %q", meta.Id, b.ID().String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for due record")
	}
}

func TestReconcileDropsMetadataOnlyOrphan(t *testing.T) {
	s := newTestStore(t)
	b, raw := testBundleBytes(t)

	if _, err := s.Insert(b.ID(), raw, false); err != nil {
		t.Fatal(err)
	}
	meta, err := s.Metadata.GetMetadata(b.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Bundles.Remove(meta.StorageName); err != nil {
		t.Fatal(err)
	}

	var reported []BundleMetadata
	if err := s.Reconcile(nil, func(m BundleMetadata) { reported = append(reported, m) }); err != nil {
		t.Fatal(err)
	}
	if len(reported) != 1 || reported[0].Id != b.ID().String() {
		t.Errorf("expected orphan deletion report, got %+v", reported)
	}
	if _, err := s.Metadata.GetMetadata(b.ID().String()); err == nil {
		t.Error("expected orphan metadata to be removed")
	}
}
