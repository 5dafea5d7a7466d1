// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import "github.com/hardy-dtn/bpa-go/bpv7"

// Operation names one capability a key in the KeyStore may be used for.
type Operation int

const (
	OpSign Operation = iota
	OpVerify
	OpEncrypt
	OpDecrypt
	OpWrapKey
	OpUnwrapKey
)

// KeyStore resolves candidate keys for a BPSec source EID and a desired
// set of operations. Verification and decryption try each candidate in
// turn and succeed on the first match; this agent never assumes a source
// EID maps to exactly one key, since key rotation overlaps are common.
type KeyStore interface {
	Keys(source bpv7.EID, ops ...Operation) [][]byte
}

// StaticKeyStore is a KeyStore backed by an in-memory table, suitable for
// configuration-file-driven deployments and tests.
type StaticKeyStore struct {
	entries map[string][]byte
}

// NewStaticKeyStore builds an empty StaticKeyStore.
func NewStaticKeyStore() *StaticKeyStore {
	return &StaticKeyStore{entries: make(map[string][]byte)}
}

// Add registers key as usable for source under every operation; this
// agent's static configuration does not distinguish sign/verify or
// encrypt/decrypt key roles, since symmetric HMAC and AES-GCM keys serve
// both sides of their respective operation.
func (s *StaticKeyStore) Add(source bpv7.EID, key []byte) {
	s.entries[source.String()] = key
}

// Keys implements KeyStore.
func (s *StaticKeyStore) Keys(source bpv7.EID, _ ...Operation) [][]byte {
	if k, ok := s.entries[source.String()]; ok {
		return [][]byte{k}
	}
	return nil
}
