// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// ParseOutcome classifies the result of ParseBundle, RFC 9171 §4.3.
type ParseOutcome int

const (
	// Valid means every invariant held and every byte decoded was already
	// the RFC 8949 canonical encoding.
	Valid ParseOutcome = iota
	// Rewritten means the bundle is semantically valid but at least one
	// block used a non-canonical encoding (or was dropped); NewBytes holds
	// a canonical re-encoding with the same bundle identity.
	Rewritten
	// Invalid means the bundle is irrecoverable; Err and Reason describe why.
	Invalid
)

// ParseResult is the outcome of ParseBundle.
type ParseResult struct {
	Outcome ParseOutcome
	Bundle  *Bundle

	// NewBytes is populated only for Outcome == Rewritten.
	NewBytes []byte

	// NonCanonical records which block numbers (0 for primary) were
	// re-encoded because their wire form was not already canonical, and
	// which unsupported blocks were dropped from the rewritten bundle.
	NonCanonical map[uint64]bool

	// ReportUnsupported collects block numbers this agent did not
	// recognise and, per their processing flags, must report back to the
	// bundle's source.
	ReportUnsupported map[uint64]bool

	Reason ReasonCode
	Err    error
}

const maxParseRecursion = 32

// ParseBundle runs the single-pass parse-and-canonicalise pipeline over
// buf. sec may be nil, in which case BIB/BCB blocks are left unprocessed:
// their targets stay opaque to extraction and, if the primary block relies
// on a BIB for its integrity requirement, parsing fails with
// MissingIntegrityCheck -- exactly as if the key store held no applicable
// key.
func ParseBundle(buf []byte, sec SecurityProcessor) ParseResult {
	dec := cbor.NewDecoder(buf)

	tags, shortest, err := dec.ReadTags()
	if err != nil {
		return invalidResult(errInvalidCBOR(err))
	}
	if len(tags) > 1 || (len(tags) == 1 && tags[0] != cbor.SelfDescribeTag) {
		return invalidResult(errInvalidCBOR(errUnexpectedTags))
	}

	outer, err := dec.OpenArray(maxParseRecursion)
	if err != nil {
		return invalidResult(errInvalidCBOR(err))
	}
	if outer.IsDefinite() {
		return invalidResult(parseErr(ReasonBlockUnintelligible, "bpv7: outer bundle array must be indefinite-length"))
	}

	primary, pShortest, err := DecodePrimaryBlock(outer, maxParseRecursion-1)
	if err != nil {
		return invalidResult(wrapReason(err, ReasonBlockUnintelligible))
	}
	shortest = shortest && pShortest
	nonCanonical := map[uint64]bool{}
	if !pShortest {
		nonCanonical[0] = true
	}
	if err := primary.CheckValid(); err != nil {
		return invalidResult(parseErr(ReasonBlockUnintelligible, "%v", err))
	}

	var blocks []Block
	seenNumbers := map[uint64]bool{}
	seenSingleton := map[BlockType]bool{}
	reportUnsupported := map[uint64]bool{}

	for {
		end, err := outer.AtEnd()
		if err != nil {
			return invalidResult(errInvalidCBOR(err))
		}
		if end {
			break
		}

		blk, bShortest, err := DecodeBlock(outer, maxParseRecursion-1)
		if err != nil {
			return invalidResult(wrapReason(err, ReasonBlockUnintelligible))
		}
		shortest = shortest && bShortest
		if !bShortest {
			nonCanonical[blk.BlockNumber] = true
		}

		if blk.BlockNumber == 0 {
			return invalidResult(errInvalidBlockNumber(0))
		}
		if seenNumbers[blk.BlockNumber] {
			return invalidResult(errInvalidBlockNumber(blk.BlockNumber))
		}
		seenNumbers[blk.BlockNumber] = true

		switch blk.Type {
		case BlockTypePayload, BlockTypePreviousNode, BlockTypeBundleAge, BlockTypeHopCount:
			if seenSingleton[blk.Type] {
				return invalidResult(errDuplicateBlock(blk.Type))
			}
			seenSingleton[blk.Type] = true
		}

		if !blk.Type.IsRecognised() {
			if blk.Flags.Has(ReportOnFailure) {
				reportUnsupported[blk.BlockNumber] = true
			}
			if blk.Flags.Has(DeleteBundleOnFailure) {
				return invalidResult(errUnsupportedBlock(blk.BlockNumber))
			}
			if blk.Flags.Has(DeleteBlockOnFailure) {
				nonCanonical[blk.BlockNumber] = true // dropped block forces a rewrite
				continue
			}
		}

		blocks = append(blocks, blk)
	}

	if !dec.AtEOF() {
		return invalidResult(errAdditionalData())
	}

	if len(blocks) == 0 || blocks[len(blocks)-1].Type != BlockTypePayload {
		if !seenSingleton[BlockTypePayload] {
			return invalidResult(errMissingPayload())
		}
		return invalidResult(errPayloadNotFinal())
	}

	bundle := &Bundle{Primary: primary, Blocks: blocks}

	// RFC 9172 §3.8: a BCB must never carry delete-block-on-failure.
	for i := range bundle.Blocks {
		b := &bundle.Blocks[i]
		if b.Type == BlockTypeBlockSecurity && b.Flags.Has(DeleteBlockOnFailure) {
			return invalidResult(parseErr(ReasonFailedSecurityOperation, "bpv7: BCB block %d must not set delete-block-on-failure", b.BlockNumber))
		}
	}

	plaintext := map[uint64][]byte{}
	covered := map[uint64]bool{}
	if sec != nil {
		var err error
		plaintext, _, err = sec.ProcessBCBs(bundle)
		if err != nil {
			return invalidResult(wrapReason(err, ReasonFailedSecurityOperation))
		}
		covered, _, err = sec.VerifyBIBs(bundle, plaintext)
		if err != nil {
			return invalidResult(wrapReason(err, ReasonFailedSecurityOperation))
		}
	}

	if primary.CRCType == CRCNone && !covered[0] {
		return invalidResult(errMissingIntegrityCheck())
	}

	dataOf := func(blockNumber uint64, raw []byte) []byte {
		if pt, ok := plaintext[blockNumber]; ok {
			return pt
		}
		return raw
	}
	extractionView := &Bundle{Primary: primary, Blocks: make([]Block, len(blocks))}
	copy(extractionView.Blocks, blocks)
	for i := range extractionView.Blocks {
		b := &extractionView.Blocks[i]
		b.Data = dataOf(b.BlockNumber, b.Data)
	}

	if _, present, err := extractionView.BundleAge(); err != nil {
		return invalidResult(parseErr(ReasonBlockUnintelligible, "%v", err))
	} else if !present && primary.CreationTimestamp.IsZeroTime() {
		return invalidResult(errMissingBundleAge())
	}
	if _, err := checkExtractable(extractionView); err != nil {
		return invalidResult(err)
	}

	result := ParseResult{
		Outcome:            Valid,
		Bundle:             bundle,
		NonCanonical:       nonCanonical,
		ReportUnsupported:  reportUnsupported,
	}
	if !shortest || len(nonCanonical) > 0 {
		result.Outcome = Rewritten
		result.NewBytes = rewriteCanonical(bundle, buf, nonCanonical)
	}
	return result
}

func checkExtractable(b *Bundle) (struct{}, error) {
	if _, present, err := b.PreviousNodeEID(); err != nil && present {
		return struct{}{}, parseErr(ReasonBlockUnintelligible, "%v", err)
	}
	if _, _, present, err := b.HopCount(); err != nil && present {
		return struct{}{}, parseErr(ReasonBlockUnintelligible, "%v", err)
	}
	return struct{}{}, nil
}

// rewriteCanonical re-encodes bundle as a canonical outer indefinite array.
// Blocks whose original wire range was already canonical are copied
// verbatim from src rather than re-serialised, so canonicalisation never
// perturbs bytes it didn't need to.
func rewriteCanonical(bundle *Bundle, src []byte, nonCanonical map[uint64]bool) []byte {
	var buf bytes.Buffer
	_ = cbor.WriteArrayHeaderIndefinite(&buf)

	if nonCanonical[0] || bundle.Primary.WireRange == ([2]int{}) {
		_ = bundle.Primary.MarshalCBOR(&buf)
	} else {
		buf.Write(src[bundle.Primary.WireRange[0]:bundle.Primary.WireRange[1]])
	}

	for i := range bundle.Blocks {
		blk := &bundle.Blocks[i]
		if nonCanonical[blk.BlockNumber] || blk.WireRange == ([2]int{}) {
			_ = blk.MarshalCBOR(&buf)
		} else {
			buf.Write(src[blk.WireRange[0]:blk.WireRange[1]])
		}
	}

	_ = cbor.WriteBreak(&buf)
	return buf.Bytes()
}

func invalidResult(err error) ParseResult {
	reason := ReasonBlockUnintelligible
	if pe, ok := err.(*ParseError); ok {
		reason = pe.Reason
	}
	return ParseResult{Outcome: Invalid, Reason: reason, Err: err}
}

func wrapReason(err error, fallback ReasonCode) error {
	if pe, ok := err.(*ParseError); ok {
		return pe
	}
	return &ParseError{Reason: fallback, Err: err}
}

var errUnexpectedTags = parseErrPlain("bpv7: at most one leading self-describe tag is permitted")

func parseErrPlain(msg string) error { return &simpleErr{msg} }

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
