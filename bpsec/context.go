// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"github.com/hardy-dtn/bpa-go/bpv7"
	log "github.com/sirupsen/logrus"
)

// Processor implements bpv7.SecurityProcessor against a KeyStore, driving
// BCB decryption and BIB verification in the order RFC 9172 requires.
type Processor struct {
	Keys KeyStore
}

// NewProcessor builds a Processor backed by keys.
func NewProcessor(keys KeyStore) *Processor {
	return &Processor{Keys: keys}
}

// ProcessBCBs implements bpv7.SecurityProcessor.
func (p *Processor) ProcessBCBs(bundle *bpv7.Bundle) (plaintext map[uint64][]byte, noKey map[uint64]bool, err error) {
	plaintext = map[uint64][]byte{}
	noKey = map[uint64]bool{}

	for i := range bundle.Blocks {
		blk := &bundle.Blocks[i]
		if blk.Type != bpv7.BlockTypeBlockSecurity {
			continue
		}

		asb, decErr := DecodeASB(blk.Data)
		if decErr != nil {
			return nil, nil, decErr
		}

		keys := p.Keys.Keys(asb.Source, OpDecrypt)
		keks := p.Keys.Keys(asb.Source, OpUnwrapKey)
		pt, decErr := DecryptBCB(bundle, blk.BlockNumber, asb, keys, keks)
		if decErr == ErrNoKey {
			log.WithFields(log.Fields{"bcb": blk.BlockNumber, "source": asb.Source}).Debug("bpsec: no key for BCB, leaving target opaque")
			for _, t := range asb.Targets {
				noKey[t] = true
			}
			continue
		}
		if decErr != nil {
			return nil, nil, decErr
		}
		for t, v := range pt {
			plaintext[t] = v
		}

		// If this BCB also covers a BIB, that BIB's own block content must
		// be replaced with its decrypted form before BIB verification runs.
		for _, t := range asb.Targets {
			if tb, ok := bundle.BlockByNumber(t); ok && tb.Type == bpv7.BlockTypeBlockIntegrity {
				if v, ok := plaintext[t]; ok {
					tb.Data = v
				}
			}
		}
	}

	return plaintext, noKey, nil
}

// VerifyBIBs implements bpv7.SecurityProcessor.
func (p *Processor) VerifyBIBs(bundle *bpv7.Bundle, plaintext map[uint64][]byte) (covered map[uint64]bool, noKey map[uint64]bool, err error) {
	covered = map[uint64]bool{}
	noKey = map[uint64]bool{}

	for i := range bundle.Blocks {
		blk := &bundle.Blocks[i]
		if blk.Type != bpv7.BlockTypeBlockIntegrity {
			continue
		}

		asb, decErr := DecodeASB(blk.Data)
		if decErr != nil {
			return nil, nil, decErr
		}

		keys := p.Keys.Keys(asb.Source, OpVerify)
		if len(keys) == 0 {
			log.WithFields(log.Fields{"bib": blk.BlockNumber, "source": asb.Source}).Debug("bpsec: no key for BIB, targets stay unverified")
			for _, t := range asb.Targets {
				noKey[t] = true
			}
			continue
		}

		c, verErr := VerifyBIB(bundle, blk.BlockNumber, asb, keys, plaintext)
		if verErr != nil {
			return nil, nil, verErr
		}
		for t := range c {
			covered[t] = true
		}
	}

	return covered, noKey, nil
}
