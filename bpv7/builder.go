// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"time"
)

// Builder assembles a Bundle by method chaining, deferring the first error
// encountered until Build is called.
//
//	bndl, err := bpv7.NewBuilder().
//		Source(src).
//		Destination(dst).
//		CreationTimestampNow().
//		Lifetime(30 * time.Minute).
//		PayloadBlock([]byte("hello")).
//		Build()
type Builder struct {
	err error

	primary          PrimaryBlock
	blocks           []Block
	canonicalCounter uint64
}

// NewBuilder starts a Builder with CRC32 on the primary block and no
// report-to set (Build defaults ReportTo to Source if left unset).
func NewBuilder() *Builder {
	return &Builder{
		primary:          PrimaryBlock{CRCType: CRC32},
		canonicalCounter: 1,
	}
}

// Error returns the first error encountered so far, if any.
func (b *Builder) Error() error { return b.err }

func (b *Builder) Source(eid EID) *Builder {
	if b.err == nil {
		b.primary.Source = eid
	}
	return b
}

func (b *Builder) Destination(eid EID) *Builder {
	if b.err == nil {
		b.primary.Destination = eid
	}
	return b
}

func (b *Builder) ReportTo(eid EID) *Builder {
	if b.err == nil {
		b.primary.ReportTo = eid
	}
	return b
}

func (b *Builder) BundleControlFlags(flags BundleControlFlags) *Builder {
	if b.err == nil {
		b.primary.Flags = flags
	}
	return b
}

func (b *Builder) CreationTimestampNow() *Builder {
	if b.err == nil {
		b.primary.CreationTimestamp = NewCreationTimestamp(DtnTimeNow(), 0)
	}
	return b
}

func (b *Builder) CreationTimestampZero() *Builder {
	if b.err == nil {
		b.primary.CreationTimestamp = NewCreationTimestamp(DtnTimeZero, 0)
	}
	return b
}

// Lifetime sets the bundle's lifetime in milliseconds.
func (b *Builder) Lifetime(d time.Duration) *Builder {
	if b.err == nil {
		if d <= 0 {
			b.err = fmt.Errorf("bpv7: lifetime %v must be positive", d)
		} else {
			b.primary.Lifetime = uint64(d.Milliseconds())
		}
	}
	return b
}

func (b *Builder) nextBlockNumber() uint64 {
	b.canonicalCounter++
	return b.canonicalCounter
}

// Canonical appends a caller-built extension block, assigning it the next
// free block number.
func (b *Builder) Canonical(blk Block) *Builder {
	if b.err == nil {
		blk.BlockNumber = b.nextBlockNumber()
		b.blocks = append(b.blocks, blk)
	}
	return b
}

// PayloadBlock sets the bundle's payload (block number 1, always).
func (b *Builder) PayloadBlock(data []byte) *Builder {
	if b.err == nil {
		b.blocks = append(b.blocks, NewBlock(BlockTypePayload, 1, 0, data))
	}
	return b
}

// HopCountBlock adds a hop-count extension block with the given limit.
func (b *Builder) HopCountBlock(limit uint64) *Builder {
	return b.Canonical(NewBlock(BlockTypeHopCount, 0, 0, EncodeHopCount(limit, 0)))
}

// BundleAgeBlock adds a bundle-age extension block, mandatory when the
// creation timestamp has no accurate clock.
func (b *Builder) BundleAgeBlock(age uint64) *Builder {
	return b.Canonical(NewBlock(BlockTypeBundleAge, 0, 0, EncodeBundleAge(age)))
}

// AdministrativeRecordPayload marks this bundle's payload as an
// administrative record and sets its payload to the encoded report.
func (b *Builder) AdministrativeRecordPayload(sr *StatusReport) *Builder {
	if b.err == nil {
		b.primary.Flags |= AdministrativeRecordPayload
		b.blocks = append(b.blocks, NewBlock(BlockTypePayload, 1, 0, EncodeAdministrativeRecord(sr)))
	}
	return b
}

// Build finalises the bundle: ReportTo defaults to Source if unset, a
// payload block and positive lifetime are mandatory, and block numbers are
// renumbered to guarantee the payload is block 1 and every other block has a
// unique, non-zero number in append order.
func (b *Builder) Build() (Bundle, error) {
	if b.err != nil {
		return Bundle{}, b.err
	}

	if b.primary.ReportTo.IsNull() && !b.primary.Source.IsNull() {
		b.primary.ReportTo = b.primary.Source
	}
	if b.primary.Source.IsNull() || b.primary.Destination.IsNull() {
		return Bundle{}, fmt.Errorf("bpv7: both Source and Destination must be set")
	}
	if b.primary.Lifetime == 0 {
		return Bundle{}, fmt.Errorf("bpv7: Lifetime must be set")
	}
	if err := b.primary.CheckValid(); err != nil {
		return Bundle{}, err
	}

	var payload *Block
	var extensions []Block
	for i := range b.blocks {
		if b.blocks[i].Type == BlockTypePayload {
			if payload != nil {
				return Bundle{}, fmt.Errorf("bpv7: more than one payload block given")
			}
			payload = &b.blocks[i]
			continue
		}
		extensions = append(extensions, b.blocks[i])
	}
	if payload == nil {
		return Bundle{}, fmt.Errorf("bpv7: a payload block is mandatory")
	}
	payload.BlockNumber = 1

	blocks := append(extensions, *payload)
	return Bundle{Primary: b.primary, Blocks: blocks}, nil
}
