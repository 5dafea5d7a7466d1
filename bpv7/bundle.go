// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// Bundle is a fully-decoded BPv7 bundle: its primary block plus the ordered
// sequence of canonical (extension) blocks that followed it on the wire,
// RFC 9171 §4.1. The payload block (type 1) is always last.
type Bundle struct {
	Primary PrimaryBlock
	Blocks  []Block
}

// ID returns the BundleID naming this bundle.
func (b *Bundle) ID() BundleID {
	id := BundleID{
		Source:            b.Primary.Source,
		CreationTimestamp:  b.Primary.CreationTimestamp,
		IsFragment:         b.Primary.Fragment != nil,
	}
	if b.Primary.Fragment != nil {
		id.FragmentOffset = b.Primary.Fragment.Offset
		id.TotalDataLength = b.Primary.Fragment.TotalDataLength
	}
	return id
}

// PayloadBlock returns the bundle's payload block (type 1), which must
// always be present and last among Blocks in a structurally valid bundle.
func (b *Bundle) PayloadBlock() (*Block, bool) {
	return b.ExtensionBlock(BlockTypePayload)
}

// ExtensionBlock returns the first block of type t, if any. Parsing rejects
// a bundle carrying more than one payload, previous-node, bundle-age or
// hop-count block (see parse.go); other block types may repeat, and only
// the first of them is returned here.
func (b *Bundle) ExtensionBlock(t BlockType) (*Block, bool) {
	for i := range b.Blocks {
		if b.Blocks[i].Type == t {
			return &b.Blocks[i], true
		}
	}
	return nil, false
}

// BlockByNumber returns the extension block with the given block number.
// The primary block is not held in Blocks, so n == 0 always reports false.
func (b *Bundle) BlockByNumber(n uint64) (*Block, bool) {
	if n == 0 {
		return nil, false // caller should check Primary directly
	}
	for i := range b.Blocks {
		if b.Blocks[i].BlockNumber == n {
			return &b.Blocks[i], true
		}
	}
	return nil, false
}

// PreviousNodeEID decodes the previous-node extension block's content, if
// present, RFC 9171 §4.4.1.
func (b *Bundle) PreviousNodeEID() (EID, bool, error) {
	blk, ok := b.ExtensionBlock(BlockTypePreviousNode)
	if !ok {
		return EID{}, false, nil
	}
	dec := cbor.NewDecoder(blk.Data)
	eid, _, err := UnmarshalEID(cbor.OpenSequence(dec), 8)
	if err != nil {
		return EID{}, true, fmt.Errorf("bpv7: malformed previous-node block: %w", err)
	}
	return eid, true, nil
}

// SetPreviousNodeEID returns the CBOR encoding of eid for use as a
// previous-node extension block's Data. It does not touch any bundle; the
// caller stores the bytes in a block itself.
func SetPreviousNodeEID(eid EID) []byte {
	var buf bytes.Buffer
	_ = eid.MarshalCBOR(&buf)
	return buf.Bytes()
}

// BundleAge decodes the bundle-age extension block's content (milliseconds
// since creation, as recorded by the source or a relay lacking a clock),
// RFC 9171 §4.4.2.
func (b *Bundle) BundleAge() (uint64, bool, error) {
	blk, ok := b.ExtensionBlock(BlockTypeBundleAge)
	if !ok {
		return 0, false, nil
	}
	dec := cbor.NewDecoder(blk.Data)
	s := cbor.OpenSequence(dec)
	age, _, err := s.ParseUint()
	if err != nil {
		return 0, true, fmt.Errorf("bpv7: malformed bundle-age block: %w", err)
	}
	return age, true, nil
}

// EncodeBundleAge encodes age (milliseconds) as a bundle-age block body.
func EncodeBundleAge(age uint64) []byte {
	var buf bytes.Buffer
	_ = cbor.WriteUint(&buf, age)
	return buf.Bytes()
}

// HopCount decodes the hop-count extension block's (limit, count) pair,
// RFC 9171 §4.4.3.
func (b *Bundle) HopCount() (limit, count uint64, ok bool, err error) {
	blk, present := b.ExtensionBlock(BlockTypeHopCount)
	if !present {
		return 0, 0, false, nil
	}
	dec := cbor.NewDecoder(blk.Data)
	s := cbor.OpenSequence(dec)
	child, oerr := s.OpenArray(8)
	if oerr != nil {
		return 0, 0, true, fmt.Errorf("bpv7: malformed hop-count block: %w", oerr)
	}
	limit, _, err = child.ParseUint()
	if err != nil {
		return 0, 0, true, fmt.Errorf("bpv7: malformed hop-count block: %w", err)
	}
	count, _, err = child.ParseUint()
	if err != nil {
		return 0, 0, true, fmt.Errorf("bpv7: malformed hop-count block: %w", err)
	}
	return limit, count, true, nil
}

// EncodeHopCount encodes a (limit, count) pair as a hop-count block body.
func EncodeHopCount(limit, count uint64) []byte {
	var buf bytes.Buffer
	_ = cbor.WriteArrayHeader(&buf, 2)
	_ = cbor.WriteUint(&buf, limit)
	_ = cbor.WriteUint(&buf, count)
	return buf.Bytes()
}

// IsAdministrativeRecord reports whether this bundle's payload is an
// administrative record (RFC 9171 §6), as flagged by the primary block's
// control flags.
func (b *Bundle) IsAdministrativeRecord() bool {
	return b.Primary.Flags.Has(AdministrativeRecordPayload)
}

// MarshalCBOR writes the bundle as an RFC 9171 §4.1 top-level indefinite-
// length array: the primary block, each extension block in order, closed
// with a CBOR break. The outer array is the one construct RFC 9171
// mandates be indefinite-length; everything nested within is definite.
func (b *Bundle) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeaderIndefinite(w); err != nil {
		return err
	}
	if err := b.Primary.MarshalCBOR(w); err != nil {
		return err
	}
	for i := range b.Blocks {
		if err := b.Blocks[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return cbor.WriteBreak(w)
}
