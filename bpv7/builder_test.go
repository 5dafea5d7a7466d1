// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
	"time"
)

func TestBuilderRoundTrip(t *testing.T) {
	bndl, err := NewBuilder().
		Source(MustParseEID("dtn://myself/")).
		Destination(MustParseEID("dtn://dest/")).
		CreationTimestampNow().
		Lifetime(10 * time.Minute).
		HopCountBlock(64).
		PayloadBlock([]byte("hello world!")).
		Build()
	if err != nil {
		t.Fatalf("Builder erred: %v", err)
	}

	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Valid {
		t.Fatalf("expected Valid, got outcome %d, err %v", result.Outcome, result.Err)
	}

	payload, ok := result.Bundle.PayloadBlock()
	if !ok {
		t.Fatal("reparsed bundle has no payload block")
	}
	if string(payload.Data) != "hello world!" {
		t.Fatalf("payload mismatch: %q", payload.Data)
	}

	if _, _, ok, err := result.Bundle.HopCount(); err != nil || !ok {
		t.Fatalf("expected a hop count block to survive round-trip, ok=%v err=%v", ok, err)
	}
}

func TestBuilderRejectsMissingPayload(t *testing.T) {
	_, err := NewBuilder().
		Source(MustParseEID("dtn://myself/")).
		Destination(MustParseEID("dtn://dest/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		Build()
	if err == nil {
		t.Fatal("expected an error for a bundle with no payload block")
	}
}

func TestBuilderRejectsDuplicatePayload(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://myself/")).
		Destination(MustParseEID("dtn://dest/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock([]byte("one"))
	b.blocks = append(b.blocks, NewBlock(BlockTypePayload, 1, 0, []byte("two")))

	if _, err := b.Build(); err == nil {
		t.Fatal("expected an error for two payload-type blocks")
	}
}

func TestBuilderDefaultsReportToSource(t *testing.T) {
	bndl, err := NewBuilder().
		Source(MustParseEID("dtn://myself/")).
		Destination(MustParseEID("dtn://dest/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock([]byte("x")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if !bndl.Primary.ReportTo.Equal(bndl.Primary.Source) {
		t.Fatalf("ReportTo should default to Source, got %v", bndl.Primary.ReportTo)
	}
}
