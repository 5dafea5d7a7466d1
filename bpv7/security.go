// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

// SecurityProcessor is the BPSec hook the §4.3 parse pipeline calls into.
// It is implemented by bpsec.Processor; defining it here (rather than
// importing bpsec from bpv7) keeps bpv7 free of a dependency on the
// security-context package while still letting ParseBundle drive BIB/BCB
// processing in the order RFC 9172 requires: BCBs first (decrypting their
// targets, including any BIB they themselves cover), then BIBs.
type SecurityProcessor interface {
	// ProcessBCBs decrypts the target of every Block Confidentiality Block
	// in bundle. plaintext maps a decrypted target's block number to its
	// recovered bytes. noKey collects the block numbers of BCB targets for
	// which no usable key was found in the key store -- not fatal, but the
	// target stays opaque to extraction. A non-nil error is fatal
	// (IntegrityCheckFailed/DecryptionFailed/a forbidden-target violation).
	ProcessBCBs(bundle *Bundle) (plaintext map[uint64][]byte, noKey map[uint64]bool, err error)

	// VerifyBIBs verifies every Block Integrity Block in bundle, consulting
	// plaintext for any target block whose bytes were recovered from a BCB.
	// covered lists every block number (0 meaning the primary block) that
	// at least one successfully verified BIB protects. noKey collects BIB
	// targets for which no usable key was found. A non-nil error is fatal.
	VerifyBIBs(bundle *Bundle, plaintext map[uint64][]byte) (covered map[uint64]bool, noKey map[uint64]bool, err error)
}
