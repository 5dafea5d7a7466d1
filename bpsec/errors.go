// SPDX-License-Identifier: GPL-3.0-or-later

// Package bpsec implements RFC 9172 Bundle Protocol Security together with
// the BIB-HMAC-SHA2 and BCB-AES-GCM security contexts of RFC 9173. It
// implements bpv7.SecurityProcessor so the §4.3 parse pipeline can drive
// BCB decryption and BIB verification without bpv7 importing this package.
package bpsec

import "fmt"

// Sentinel failure conditions, RFC 9172 §3.10/RFC 9173.
var (
	ErrNoKey                 = fmt.Errorf("bpsec: no usable key in key store")
	ErrIntegrityCheckFailed  = fmt.Errorf("bpsec: integrity check failed")
	ErrDecryptionFailed      = fmt.Errorf("bpsec: decryption failed")
	ErrUnsupportedOperation  = fmt.Errorf("bpsec: unsupported security context")
	ErrInvalidBCBTarget      = fmt.Errorf("bpsec: invalid BCB target")
	ErrInvalidBIBTarget      = fmt.Errorf("bpsec: invalid BIB target")
	ErrBCBMustShareTarget    = fmt.Errorf("bpsec: a BCB covering a BIB must share the BIB's full target set")
	ErrBCBMustReplicate      = fmt.Errorf("bpsec: a BCB targeting the payload requires must-replicate on the payload block")
	ErrDuplicateOpTarget     = fmt.Errorf("bpsec: duplicate security operation target")
	ErrMissingSecurityTarget = fmt.Errorf("bpsec: security target block not found")
	ErrNotCanonical          = fmt.Errorf("bpsec: security block target uses a non-canonical encoding")
)
