// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"bytes"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// ScopeFlags selects which additional context a security operation's
// additional authenticated data covers, RFC 9173 §3.7/§4.3.
type ScopeFlags uint8

const (
	ScopeIncludePrimaryBlock   ScopeFlags = 1 << 0
	ScopeIncludeTargetHeader   ScopeFlags = 1 << 1
	ScopeIncludeSecurityHeader ScopeFlags = 1 << 2

	scopeKnownMask = ScopeIncludePrimaryBlock | ScopeIncludeTargetHeader | ScopeIncludeSecurityHeader

	// DefaultScopeFlags is the scope this agent applies when a BIB/BCB
	// carries no explicit scope-flags parameter.
	DefaultScopeFlags = ScopeIncludePrimaryBlock | ScopeIncludeTargetHeader | ScopeIncludeSecurityHeader
)

// targetHeader is the (block_type, block_number, flags) triple identifying
// either a target block or the security block itself within the AAD.
type targetHeader struct {
	blockType   bpv7.BlockType
	blockNumber uint64
	flags       uint64
}

func primaryAsTargetHeader() targetHeader {
	// The primary block has no explicit type code on the wire; RFC 9173
	// treats it as block type 0/number 0 for AAD purposes.
	return targetHeader{blockType: 0, blockNumber: 0, flags: 0}
}

// buildAAD constructs the additional authenticated data both BIB and BCB
// operations cover, per spec: the masked scope flags, optionally the
// canonical primary block bytes, optionally the target's own header,
// optionally the security block's own header, and -- for BIB operations
// only -- the target's byte-string-framed plaintext.
func buildAAD(bundle *bpv7.Bundle, target targetHeader, isPrimaryTarget bool, secBlock targetHeader, scope ScopeFlags, targetPayload []byte, includeTargetPayload bool) ([]byte, error) {
	var buf bytes.Buffer

	masked := scope & scopeKnownMask
	if err := cbor.WriteUint(&buf, uint64(masked)); err != nil {
		return nil, err
	}

	if masked&ScopeIncludePrimaryBlock != 0 {
		if err := bundle.Primary.MarshalCBOR(&buf); err != nil {
			return nil, err
		}
	}

	if masked&ScopeIncludeTargetHeader != 0 && !isPrimaryTarget {
		if err := cbor.WriteUint(&buf, uint64(target.blockType)); err != nil {
			return nil, err
		}
		if err := cbor.WriteUint(&buf, target.blockNumber); err != nil {
			return nil, err
		}
		if err := cbor.WriteUint(&buf, target.flags); err != nil {
			return nil, err
		}
	}

	if masked&ScopeIncludeSecurityHeader != 0 {
		if err := cbor.WriteUint(&buf, uint64(secBlock.blockType)); err != nil {
			return nil, err
		}
		if err := cbor.WriteUint(&buf, secBlock.blockNumber); err != nil {
			return nil, err
		}
		if err := cbor.WriteUint(&buf, secBlock.flags); err != nil {
			return nil, err
		}
	}

	if includeTargetPayload {
		if err := cbor.WriteBytes(&buf, targetPayload); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func blockAsTargetHeader(b *bpv7.Block) targetHeader {
	return targetHeader{blockType: b.Type, blockNumber: b.BlockNumber, flags: uint64(b.Flags)}
}
