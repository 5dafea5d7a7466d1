// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// decodeJWKKey decodes a JWK "oct" key's base64url-without-padding "k"
// field, the encoding RFC 9173's companion test vectors (and the original
// implementation this agent was distilled from) use for key material.
func decodeJWKKey(t *testing.T, k string) []byte {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(k)
	if err != nil {
		t.Fatalf("decodeJWKKey(%q): %v", k, err)
	}
	return b
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex decode: %v", err)
	}
	return b
}

// TestRFC9173AppendixA1 exercises the Appendix A.1 BIB-HMAC-SHA2 test
// vector: a bundle whose payload is covered by a BIB keyed to ipn:2.1.
func TestRFC9173AppendixA1(t *testing.T) {
	raw := mustHex(t, ""+
		"9f88070000820282010282028202018202820201820018281a000f4240850b0200"+
		"005856810101018202820201828201078203008181820158403bdc69b3a34a2b5d3a"+
		"8554368bd1e808f606219d2a10a846eae3886ae4ecc83c4ee550fdfb1cc636b904e2"+
		"f1a73e303dcd4b6ccece003e95e8164dcc89a156e185010100005823526561647920"+
		"746f2067656e657261746520612033322d62797465207061796c6f6164ff")

	keys := NewStaticKeyStore()
	keys.Add(bpv7.MustParseEID("ipn:2.1"), decodeJWKKey(t, "GisaKxorGisaKxorGisaKw"))
	proc := NewProcessor(keys)

	result := bpv7.ParseBundle(raw, proc)
	if result.Outcome == bpv7.Invalid {
		t.Fatalf("expected a verifiable bundle, got Invalid: reason=%v err=%v", result.Reason, result.Err)
	}
}

// TestRFC9173AppendixA2 exercises the Appendix A.2 BCB-AES-GCM test vector:
// a bundle whose payload is encrypted under a CEK wrapped with an AES
// key-wrap KEK keyed to ipn:2.1.
func TestRFC9173AppendixA2(t *testing.T) {
	raw := mustHex(t, ""+
		"9f88070000820282010282028202018202820201820018281a000f4240850c0201"+
		"0058508101020182028202018482014c5477656c7665313231323132820201820358"+
		"1869c411276fecddc4780df42c8a2af89296fabf34d7fae7008204008181820150ef"+
		"a4b5ac0108e3816c5606479801bc04850101000058233a09c1e63fe23a7f66a59c73"+
		"03837241e070b02619fc59c5214a22f08cd70795e73e9aff")

	kek := decodeJWKKey(t, "YWJjZGVmZ2hpamtsbW5vcA")
	keys := NewStaticKeyStore()
	keys.Add(bpv7.MustParseEID("ipn:2.1"), kek)
	proc := NewProcessor(keys)

	result := bpv7.ParseBundle(raw, proc)
	if result.Outcome == bpv7.Invalid {
		t.Fatalf("expected a decryptable bundle, got Invalid: reason=%v err=%v", result.Reason, result.Err)
	}
}
