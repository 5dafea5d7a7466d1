// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// BundleVersion is the only BPv7 version number this agent accepts.
const BundleVersion uint64 = 7

// FragmentInfo is the (offset, total ADU length) pair carried by a
// fragment's primary block, RFC 9171 §4.2.1.
type FragmentInfo struct {
	Offset          uint64
	TotalDataLength uint64
}

// PrimaryBlock is the mandatory first block of every bundle, RFC 9171 §4.2.2.
type PrimaryBlock struct {
	Flags             BundleControlFlags
	CRCType           CRCType
	Destination       EID
	Source            EID
	ReportTo          EID
	CreationTimestamp CreationTimestamp
	Lifetime          uint64 // milliseconds

	Fragment *FragmentInfo // non-nil iff Flags.Has(IsFragment)

	// WireRange is the [start, end) byte offsets of this block's own
	// encoding within the bundle bytes it was parsed from.
	WireRange [2]int
}

// CheckValid validates this primary block's invariants (RFC 9171 §4.2.3
// forbidden flag combinations).
func (p PrimaryBlock) CheckValid() error {
	if err := p.Flags.CheckAgainst(p.Source); err != nil {
		return err
	}
	if p.Flags.Has(IsFragment) != (p.Fragment != nil) {
		return fmt.Errorf("bpv7: is-fragment flag and fragment info presence disagree")
	}
	return nil
}

func (p PrimaryBlock) elementCount() uint64 {
	n := uint64(8)
	if p.Fragment != nil {
		n += 2
	}
	if p.CRCType != CRCNone {
		n++
	}
	return n
}

// MarshalCBOR writes the primary block as a definite-length CBOR array,
// computing its own CRC when CRCType != CRCNone.
func (p PrimaryBlock) MarshalCBOR(w io.Writer) error {
	if p.CRCType == CRCNone {
		return p.marshalWithCRC(w, nil)
	}

	var probe bytes.Buffer
	if err := p.marshalWithCRC(&probe, zeroCRC(p.CRCType)); err != nil {
		return err
	}
	crc := computeCRC(p.CRCType, probe.Bytes())
	return p.marshalWithCRC(w, crc)
}

func (p PrimaryBlock) marshalWithCRC(w io.Writer, crc []byte) error {
	if err := cbor.WriteArrayHeader(w, p.elementCount()); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, BundleVersion); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(p.Flags)); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(p.CRCType)); err != nil {
		return err
	}
	if err := p.Destination.MarshalCBOR(w); err != nil {
		return err
	}
	if err := p.Source.MarshalCBOR(w); err != nil {
		return err
	}
	if err := p.ReportTo.MarshalCBOR(w); err != nil {
		return err
	}
	if err := p.CreationTimestamp.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, p.Lifetime); err != nil {
		return err
	}
	if p.Fragment != nil {
		if err := cbor.WriteUint(w, p.Fragment.Offset); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, p.Fragment.TotalDataLength); err != nil {
			return err
		}
	}
	if p.CRCType != CRCNone {
		return cbor.WriteBytes(w, crc)
	}
	return nil
}

// DecodePrimaryBlock reads the primary block off parent (the bundle's
// outer array), verifying its CRC if present.
func DecodePrimaryBlock(parent *cbor.Series, maxRecursion int) (PrimaryBlock, bool, error) {
	startPos := parent.Pos()

	child, err := parent.OpenArray(maxRecursion)
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	n, ok := child.Count()
	if !ok {
		return PrimaryBlock{}, false, fmt.Errorf("bpv7: primary block array must be definite-length")
	}

	shortest := true

	version, s, err := child.ParseUint()
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s
	if version != BundleVersion {
		return PrimaryBlock{}, shortest, &UnsupportedVersionError{Version: version}
	}

	flags, s, err := child.ParseUint()
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	crcType, s, err := child.ParseUint()
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	dest, s, err := UnmarshalEID(child, maxRecursion-1)
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	source, s, err := UnmarshalEID(child, maxRecursion-1)
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	reportTo, s, err := UnmarshalEID(child, maxRecursion-1)
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	ts, s, err := UnmarshalCreationTimestamp(child, maxRecursion-1)
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	lifetime, s, err := child.ParseUint()
	if err != nil {
		return PrimaryBlock{}, false, err
	}
	shortest = shortest && s

	p := PrimaryBlock{
		Flags:             BundleControlFlags(flags),
		CRCType:           CRCType(crcType),
		Destination:       dest,
		Source:            source,
		ReportTo:          reportTo,
		CreationTimestamp: ts,
		Lifetime:          lifetime,
	}

	if p.Flags.Has(IsFragment) {
		offset, s, err := child.ParseUint()
		if err != nil {
			return PrimaryBlock{}, false, err
		}
		shortest = shortest && s

		total, s, err := child.ParseUint()
		if err != nil {
			return PrimaryBlock{}, false, err
		}
		shortest = shortest && s

		p.Fragment = &FragmentInfo{Offset: offset, TotalDataLength: total}
	}

	expectN := p.elementCount()
	if n != expectN {
		return PrimaryBlock{}, false, fmt.Errorf("bpv7: primary block array has %d elements, expected %d", n, expectN)
	}

	if p.CRCType != CRCNone {
		crc, s, err := child.ParseBytes()
		if err != nil {
			return PrimaryBlock{}, false, err
		}
		shortest = shortest && s
		if len(crc) != p.CRCType.Len() {
			return PrimaryBlock{}, false, fmt.Errorf("bpv7: primary block crc field length %d does not match crc_type %v", len(crc), p.CRCType)
		}

		var probe bytes.Buffer
		if err := p.marshalWithCRC(&probe, zeroCRC(p.CRCType)); err != nil {
			return PrimaryBlock{}, false, err
		}
		want := computeCRC(p.CRCType, probe.Bytes())
		if !bytes.Equal(want, crc) {
			return PrimaryBlock{}, false, fmt.Errorf("bpv7: primary block crc mismatch")
		}
	}

	p.WireRange = [2]int{startPos, parent.Pos()}
	return p, shortest, nil
}

// UnsupportedVersionError is returned when a primary block names a BPv7
// version other than 7.
type UnsupportedVersionError struct {
	Version uint64
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("bpv7: unsupported bundle protocol version %d", e.Version)
}
