// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
	"time"
)

func mustBuildBytes(t *testing.T, b *Builder) []byte {
	t.Helper()
	bndl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	return buf.Bytes()
}

func TestParseBundleValid(t *testing.T) {
	data := mustBuildBytes(t, NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock([]byte("hi")))

	result := ParseBundle(data, nil)
	if result.Outcome != Valid {
		t.Fatalf("expected Valid, got %d (err %v)", result.Outcome, result.Err)
	}
}

func TestParseBundleRejectsDuplicateBlockNumbers(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock([]byte("hi"))
	bndl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	bndl.Blocks = append(bndl.Blocks, NewBlock(BlockTypeHopCount, 1, 0, EncodeHopCount(10, 0)))

	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Invalid {
		t.Fatalf("expected Invalid for duplicate block numbers, got %d", result.Outcome)
	}
}

func TestParseBundleRejectsMissingPayload(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute)
	b.blocks = append(b.blocks, NewBlock(BlockTypeHopCount, 1, 0, EncodeHopCount(10, 0)))
	bndl := Bundle{Primary: b.primary, Blocks: b.blocks}

	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Invalid {
		t.Fatalf("expected Invalid for a bundle with no payload block, got %d", result.Outcome)
	}
}

func TestParseBundleRejectsPayloadNotFinal(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock([]byte("hi"))
	bndl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	// Append an extension block after the payload, which Build() never does
	// on its own (it always places the payload last).
	bndl.Blocks = append(bndl.Blocks, NewBlock(BlockTypeHopCount, 99, 0, EncodeHopCount(10, 0)))

	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Invalid {
		t.Fatalf("expected Invalid when payload is not the final block, got %d", result.Outcome)
	}
}

func TestParseBundleRejectsGarbage(t *testing.T) {
	result := ParseBundle([]byte{0xff, 0xff, 0xff}, nil)
	if result.Outcome != Invalid {
		t.Fatalf("expected Invalid for garbage input, got %d", result.Outcome)
	}
	if result.Err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestParseBundleDropsUnsupportedBlockMarkedDeleteOnFailure(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		Canonical(NewBlock(BlockType(9999), 0, DeleteBlockOnFailure, []byte("opaque"))).
		PayloadBlock([]byte("hi"))

	bndl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Rewritten {
		t.Fatalf("expected Rewritten after dropping an unsupported block, got %d (err %v)", result.Outcome, result.Err)
	}
	for _, blk := range result.Bundle.Blocks {
		if blk.Type == BlockType(9999) {
			t.Fatal("unsupported block with delete-on-failure should have been dropped")
		}
	}

	reparsed := ParseBundle(result.NewBytes, nil)
	if reparsed.Outcome != Valid {
		t.Fatalf("rewritten bytes should reparse as Valid, got %d (err %v)", reparsed.Outcome, reparsed.Err)
	}
}

func TestParseBundleRejectsUnsupportedBlockMarkedDeleteBundleOnFailure(t *testing.T) {
	b := NewBuilder().
		Source(MustParseEID("dtn://a/")).
		Destination(MustParseEID("dtn://b/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		Canonical(NewBlock(BlockType(9999), 0, DeleteBundleOnFailure, []byte("opaque"))).
		PayloadBlock([]byte("hi"))

	bndl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatal(err)
	}

	result := ParseBundle(buf.Bytes(), nil)
	if result.Outcome != Invalid {
		t.Fatalf("expected Invalid when an unsupported block requests bundle deletion, got %d", result.Outcome)
	}
}
