// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// BIB-HMAC-SHA2 security context parameter and result identifiers,
// RFC 9173 §3.3/§3.4.
const (
	ParamShaVariant uint64 = 1
	ParamWrappedKey uint64 = 2
	ParamScopeFlags uint64 = 3

	ResultHMAC uint64 = 1
)

// SHA variant parameter values, RFC 9173 §3.3.
const (
	HMACSHA256 uint64 = 5
	HMACSHA384 uint64 = 6 // default
	HMACSHA512 uint64 = 7
)

func hmacNewFunc(variant uint64) (func() hash.Hash, error) {
	switch variant {
	case HMACSHA256:
		return sha256.New, nil
	case HMACSHA384, 0:
		return sha512.New384, nil
	case HMACSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: HMAC SHA variant %d", ErrUnsupportedOperation, variant)
	}
}

// targetPlaintext returns the block-type-specific data bpsec treats as a
// BIB/BCB target's "payload": an extension block's Data field, or the
// primary block's own canonical encoding when the target is block 0.
func targetPlaintext(bundle *bpv7.Bundle, blockNumber uint64, plaintextOverride map[uint64][]byte) ([]byte, targetHeader, bool, error) {
	if blockNumber == 0 {
		var buf []byte
		buf = append(buf, bpv7PrimaryBytes(bundle)...)
		return buf, primaryAsTargetHeader(), true, nil
	}
	blk, ok := bundle.BlockByNumber(blockNumber)
	if !ok {
		return nil, targetHeader{}, false, ErrMissingSecurityTarget
	}
	data := blk.Data
	if override, ok := plaintextOverride[blockNumber]; ok {
		data = override
	}
	return data, blockAsTargetHeader(blk), false, nil
}

func bpv7PrimaryBytes(bundle *bpv7.Bundle) []byte {
	var buf []byte
	w := &byteSliceWriter{&buf}
	_ = bundle.Primary.MarshalCBOR(w)
	return buf
}

type byteSliceWriter struct{ buf *[]byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func scopeFromParams(params []IDValue) ScopeFlags {
	if v, ok := findIDValue(params, ParamScopeFlags); ok && !v.IsBytes {
		return ScopeFlags(v.Uint)
	}
	return DefaultScopeFlags
}

// NewBIB builds a signed Block Integrity Block covering targets, using key
// as the HMAC key and variant selecting the SHA width (0 defaults to
// HMAC-384/384).
func NewBIB(bundle *bpv7.Bundle, bibBlockNumber uint64, targets []uint64, source bpv7.EID, variant uint64, scope ScopeFlags, key []byte) (AbstractSecurityBlock, error) {
	newHash, err := hmacNewFunc(variant)
	if err != nil {
		return AbstractSecurityBlock{}, err
	}

	secHeader := targetHeader{blockType: bpv7.BlockTypeBlockIntegrity, blockNumber: bibBlockNumber}

	results := make([]TargetResults, len(targets))
	for i, t := range targets {
		payload, th, isPrimary, err := targetPlaintext(bundle, t, nil)
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		aad, err := buildAAD(bundle, th, isPrimary, secHeader, scope, payload, true)
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		mac := hmac.New(newHash, key)
		mac.Write(aad)
		results[i] = TargetResults{bytesIDValue(ResultHMAC, mac.Sum(nil))}
	}

	params := []IDValue{uintIDValue(ParamShaVariant, variant), uintIDValue(ParamScopeFlags, uint64(scope))}

	return AbstractSecurityBlock{
		Targets:    targets,
		ContextID:  ContextBIBHMACSHA2,
		Source:     source,
		Parameters: params,
		Results:    results,
	}, nil
}

// VerifyBIB checks asb's HMAC results against bundle, trying each key in
// keys in turn per target and succeeding on the first match. plaintext
// overrides the target's on-wire Data with a BCB-recovered value where
// present. covered collects the block numbers (0 for primary) whose
// integrity this BIB successfully verified.
func VerifyBIB(bundle *bpv7.Bundle, bibBlockNumber uint64, asb AbstractSecurityBlock, keys [][]byte, plaintext map[uint64][]byte) (covered map[uint64]bool, err error) {
	variant := HMACSHA384
	if v, ok := findIDValue(asb.Parameters, ParamShaVariant); ok && !v.IsBytes {
		variant = v.Uint
	}
	scope := scopeFromParams(asb.Parameters)

	newHash, err := hmacNewFunc(variant)
	if err != nil {
		return nil, err
	}

	secHeader := targetHeader{blockType: bpv7.BlockTypeBlockIntegrity, blockNumber: bibBlockNumber}
	covered = map[uint64]bool{}

	for i, t := range asb.Targets {
		if t == bibBlockNumber {
			return nil, ErrInvalidBIBTarget
		}
		if tb, ok := bundle.BlockByNumber(t); ok && (tb.Type == bpv7.BlockTypeBlockIntegrity || tb.Type == bpv7.BlockTypeBlockSecurity) {
			return nil, ErrInvalidBIBTarget
		}

		payload, th, isPrimary, err := targetPlaintext(bundle, t, plaintext)
		if err != nil {
			return nil, err
		}
		aad, err := buildAAD(bundle, th, isPrimary, secHeader, scope, payload, true)
		if err != nil {
			return nil, err
		}

		want, ok := findIDValue(asb.Results[i], ResultHMAC)
		if !ok || !want.IsBytes {
			return nil, fmt.Errorf("bpsec: BIB target %d has no HMAC result", t)
		}

		if len(keys) == 0 {
			return nil, ErrNoKey
		}

		matched := false
		for _, key := range keys {
			mac := hmac.New(newHash, key)
			mac.Write(aad)
			if subtle.ConstantTimeCompare(mac.Sum(nil), want.Bytes) == 1 {
				matched = true
				break
			}
		}
		if !matched {
			return nil, ErrIntegrityCheckFailed
		}
		covered[t] = true
	}

	return covered, nil
}
