// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// BCB-AES-GCM security context parameter and result identifiers,
// RFC 9173 §4.2/§4.3.
const (
	ParamBCBIV         uint64 = 1
	ParamBCBVariant    uint64 = 2
	ParamBCBWrappedKey uint64 = 3
	ParamBCBScopeFlags uint64 = 4

	ResultAuthTag uint64 = 1
)

// AES-GCM variant parameter values, RFC 9173 §4.2.
const (
	AES128GCM uint64 = 1
	AES256GCM uint64 = 3 // default
)

func gcmKeyLen(variant uint64) (int, error) {
	switch variant {
	case AES128GCM:
		return 16, nil
	case AES256GCM, 0:
		return 32, nil
	default:
		return 0, fmt.Errorf("%w: AES-GCM variant %d", ErrUnsupportedOperation, variant)
	}
}

// NewBCB builds a single Block Confidentiality Block that encrypts exactly
// one target, per the RFC 9173 §4.3.1 constraint that every BCB-AES-GCM IV
// be unique: this agent never reuses an IV across targets, so it never
// emits more than one target per BCB. cek is either supplied directly or,
// if kek is non-nil, generated fresh and wrapped under kek. It returns the
// ASB plus the ciphertext the caller substitutes for the target block's
// Data.
func NewBCB(bundle *bpv7.Bundle, bcbBlockNumber, targetBlockNumber uint64, source bpv7.EID, variant uint64, scope ScopeFlags, cek, kek []byte) (asb AbstractSecurityBlock, ciphertext []byte, err error) {
	keyLen, err := gcmKeyLen(variant)
	if err != nil {
		return AbstractSecurityBlock{}, nil, err
	}
	if cek == nil {
		cek = make([]byte, keyLen)
		if _, err := rand.Read(cek); err != nil {
			return AbstractSecurityBlock{}, nil, err
		}
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return AbstractSecurityBlock{}, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return AbstractSecurityBlock{}, nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return AbstractSecurityBlock{}, nil, err
	}

	plaintext, th, isPrimary, err := targetPlaintext(bundle, targetBlockNumber, nil)
	if err != nil {
		return AbstractSecurityBlock{}, nil, err
	}

	secHeader := targetHeader{blockType: bpv7.BlockTypeBlockSecurity, blockNumber: bcbBlockNumber}
	aad, err := buildAAD(bundle, th, isPrimary, secHeader, scope, nil, false)
	if err != nil {
		return AbstractSecurityBlock{}, nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	params := []IDValue{
		bytesIDValue(ParamBCBIV, iv),
		uintIDValue(ParamBCBVariant, variant),
		uintIDValue(ParamBCBScopeFlags, uint64(scope)),
	}
	if kek != nil {
		wrapped, err := aesKeyWrap(kek, cek)
		if err != nil {
			return AbstractSecurityBlock{}, nil, err
		}
		params = append(params, bytesIDValue(ParamBCBWrappedKey, wrapped))
	}

	asb = AbstractSecurityBlock{
		Targets:    []uint64{targetBlockNumber},
		ContextID:  ContextBCBAESGCM,
		Source:     source,
		Parameters: params,
		Results:    []TargetResults{{bytesIDValue(ResultAuthTag, tag)}},
	}
	return asb, ct, nil
}

// DecryptBCB decrypts every target of asb, trying each candidate key in
// keys (or, if a wrapped CEK parameter is present, using kek to recover the
// CEK first) and returns the recovered plaintext keyed by target block
// number.
func DecryptBCB(bundle *bpv7.Bundle, bcbBlockNumber uint64, asb AbstractSecurityBlock, keys [][]byte, keks [][]byte) (plaintext map[uint64][]byte, err error) {
	scope := ScopeFlags(DefaultScopeFlags)
	if v, ok := findIDValue(asb.Parameters, ParamBCBScopeFlags); ok && !v.IsBytes {
		scope = ScopeFlags(v.Uint)
	}
	ivParam, ok := findIDValue(asb.Parameters, ParamBCBIV)
	if !ok || !ivParam.IsBytes {
		return nil, fmt.Errorf("bpsec: BCB missing mandatory IV parameter")
	}

	candidates := keys
	if wk, ok := findIDValue(asb.Parameters, ParamBCBWrappedKey); ok && wk.IsBytes {
		candidates = nil
		for _, kek := range keks {
			if cek, err := aesKeyUnwrap(kek, wk.Bytes); err == nil {
				candidates = append(candidates, cek)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoKey
	}

	secHeader := targetHeader{blockType: bpv7.BlockTypeBlockSecurity, blockNumber: bcbBlockNumber}
	plaintext = map[uint64][]byte{}

	for i, t := range asb.Targets {
		if tb, ok := bundle.BlockByNumber(t); ok && tb.Type == bpv7.BlockTypeBlockSecurity {
			return nil, ErrInvalidBCBTarget
		}
		if t == 0 {
			return nil, ErrInvalidBCBTarget
		}
		tb, ok := bundle.BlockByNumber(t)
		if !ok {
			return nil, ErrMissingSecurityTarget
		}
		if tb.Type == bpv7.BlockTypePayload && !tb.Flags.Has(bpv7.MustReplicate) {
			return nil, ErrBCBMustReplicate
		}

		tagResult, ok := findIDValue(asb.Results[i], ResultAuthTag)
		if !ok || !tagResult.IsBytes {
			return nil, fmt.Errorf("bpsec: BCB target %d has no authentication tag result", t)
		}

		_, th, isPrimary, err := targetPlaintext(bundle, t, nil)
		if err != nil {
			return nil, err
		}
		aad, err := buildAAD(bundle, th, isPrimary, secHeader, scope, nil, false)
		if err != nil {
			return nil, err
		}

		sealed := append(append([]byte{}, tb.Data...), tagResult.Bytes...)

		var ok2 bool
		for _, cek := range candidates {
			block, err := aes.NewCipher(cek)
			if err != nil {
				continue
			}
			gcm, err := cipher.NewGCM(block)
			if err != nil {
				continue
			}
			pt, err := gcm.Open(nil, ivParam.Bytes, sealed, aad)
			if err == nil {
				plaintext[t] = pt
				ok2 = true
				break
			}
		}
		if !ok2 {
			return nil, ErrDecryptionFailed
		}
	}

	return plaintext, nil
}
