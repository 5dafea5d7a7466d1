// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// BlockType is an extension block's type code, RFC 9171 §4.2.2 plus the
// BPSec block types from RFC 9172 §3.6/§3.9.
type BlockType uint64

const (
	BlockTypePayload         BlockType = 1
	BlockTypePreviousNode    BlockType = 6
	BlockTypeBundleAge       BlockType = 7
	BlockTypeHopCount        BlockType = 10
	BlockTypeBlockIntegrity  BlockType = 11 // BIB
	BlockTypeBlockSecurity   BlockType = 12 // BCB
)

func (t BlockType) String() string {
	switch t {
	case BlockTypePayload:
		return "payload"
	case BlockTypePreviousNode:
		return "previous-node"
	case BlockTypeBundleAge:
		return "bundle-age"
	case BlockTypeHopCount:
		return "hop-count"
	case BlockTypeBlockIntegrity:
		return "bib"
	case BlockTypeBlockSecurity:
		return "bcb"
	default:
		return fmt.Sprintf("unrecognised(%d)", uint64(t))
	}
}

// IsRecognised reports whether t is one of the block types this agent
// interprets specially, as opposed to carrying opaquely.
func (t BlockType) IsRecognised() bool {
	switch t {
	case BlockTypePayload, BlockTypePreviousNode, BlockTypeBundleAge, BlockTypeHopCount,
		BlockTypeBlockIntegrity, BlockTypeBlockSecurity:
		return true
	default:
		return false
	}
}

// Block is an extension (canonical) block, RFC 9171 §4.3.2. The primary
// block (block number 0) is represented separately by PrimaryBlock.
type Block struct {
	Type       BlockType
	BlockNumber uint64
	Flags      BlockControlFlags
	CRCType    CRCType
	Data       []byte // the block-type-specific payload, unwrapped from its byte-string container

	// WireRange is the [start, end) byte offsets of this block's own
	// encoding within the bundle bytes it was parsed from. Zero value
	// (both ends 0) for a block that did not come from parsing.
	WireRange [2]int

	// BIB/BCB can record the block number of a security block covering
	// this block. Neither ParseBundle nor the bpsec package sets them, so
	// they are nil on parsed blocks.
	BIB *uint64
	BCB *uint64
}

// NewBlock builds a Block with CRCType none and no security coverage.
func NewBlock(t BlockType, blockNumber uint64, flags BlockControlFlags, data []byte) Block {
	return Block{Type: t, BlockNumber: blockNumber, Flags: flags, CRCType: CRCNone, Data: data}
}

// MarshalCBOR writes this Block as a definite-length 5- or 6-element array
// per RFC 9171 §4.3.2, computing its own CRC when CRCType != CRCNone.
func (b Block) MarshalCBOR(w io.Writer) error {
	if b.CRCType == CRCNone {
		if err := cbor.WriteArrayHeader(w, 5); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, uint64(b.Type)); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, b.BlockNumber); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, uint64(b.Flags)); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, uint64(b.CRCType)); err != nil {
			return err
		}
		return cbor.WriteBytes(w, b.Data)
	}

	var probe bytes.Buffer
	if err := b.marshalWithCRC(&probe, zeroCRC(b.CRCType)); err != nil {
		return err
	}
	crc := computeCRC(b.CRCType, probe.Bytes())
	return b.marshalWithCRC(w, crc)
}

// marshalWithCRC writes the full block array using the supplied CRC bytes
// verbatim (used to build the zero-CRC probe buffer for checksum
// computation, and by the decoder's verification step).
func (b Block) marshalWithCRC(w io.Writer, crc []byte) error {
	if err := cbor.WriteArrayHeader(w, 6); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(b.Type)); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, b.BlockNumber); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(b.Flags)); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(b.CRCType)); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, b.Data); err != nil {
		return err
	}
	return cbor.WriteBytes(w, crc)
}

// DecodeBlock reads one extension block off parent (the bundle's outer
// block sequence). It also verifies the block's CRC, if any, returning a
// non-nil error if it fails to match.
func DecodeBlock(parent *cbor.Series, maxRecursion int) (Block, bool, error) {
	startPos := parent.Pos()

	child, err := parent.OpenArray(maxRecursion)
	if err != nil {
		return Block{}, false, err
	}
	n, ok := child.Count()
	if !ok {
		return Block{}, false, fmt.Errorf("bpv7: extension block array must be definite-length")
	}
	if n != 5 && n != 6 {
		return Block{}, false, fmt.Errorf("bpv7: extension block array must have 5 or 6 elements, got %d", n)
	}

	shortest := true

	typeCode, s1, err := child.ParseUint()
	if err != nil {
		return Block{}, false, err
	}
	shortest = shortest && s1

	blockNumber, s2, err := child.ParseUint()
	if err != nil {
		return Block{}, false, err
	}
	shortest = shortest && s2

	flags, s3, err := child.ParseUint()
	if err != nil {
		return Block{}, false, err
	}
	shortest = shortest && s3

	crcType, s4, err := child.ParseUint()
	if err != nil {
		return Block{}, false, err
	}
	shortest = shortest && s4

	if (crcType != uint64(CRCNone)) != (n == 6) {
		return Block{}, false, fmt.Errorf("bpv7: crc_type %d inconsistent with %d-element block array", crcType, n)
	}

	data, s5, err := child.ParseBytes()
	if err != nil {
		return Block{}, false, err
	}
	shortest = shortest && s5

	b := Block{
		Type:        BlockType(typeCode),
		BlockNumber: blockNumber,
		Flags:       BlockControlFlags(flags),
		CRCType:     CRCType(crcType),
		Data:        data,
	}

	if n == 6 {
		crc, s6, err := child.ParseBytes()
		if err != nil {
			return Block{}, false, err
		}
		shortest = shortest && s6

		if len(crc) != b.CRCType.Len() {
			return Block{}, false, fmt.Errorf("bpv7: crc field length %d does not match crc_type %v", len(crc), b.CRCType)
		}

		var probe bytes.Buffer
		if err := b.marshalWithCRC(&probe, zeroCRC(b.CRCType)); err != nil {
			return Block{}, false, err
		}
		want := computeCRC(b.CRCType, probe.Bytes())
		if !bytes.Equal(want, crc) {
			return Block{}, false, fmt.Errorf("bpv7: crc mismatch on block %d", blockNumber)
		}
	}

	b.WireRange = [2]int{startPos, parent.Pos()}
	return b, shortest, nil
}
