// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

func TestParseEIDRoundTrip(t *testing.T) {
	tests := []string{
		"dtn:none",
		"dtn://node-a/",
		"dtn://node-a/mail",
		"dtn://node-a/mail/inbox",
		"ipn:2.1",
		"ipn:1.2.1",
	}

	for _, s := range tests {
		eid, err := ParseEID(s)
		if err != nil {
			t.Fatalf("ParseEID(%q): %v", s, err)
		}
		if got := eid.String(); got != s {
			t.Fatalf("ParseEID(%q).String() = %q", s, got)
		}
	}
}

func TestParseEIDRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"dtn",
		"dtn:/node-a/",
		"ipn:1",
		"ipn:1.2.3.4",
		"ipn:x.1",
		"xyz://wat/",
	}

	for _, s := range tests {
		if _, err := ParseEID(s); err == nil {
			t.Fatalf("ParseEID(%q) should have erred", s)
		}
	}
}

func TestIpnEqualNormalisesImplicitAllocator(t *testing.T) {
	legacy := NewIpn(0, 5, 7)
	explicit := NewIpn(0, 5, 7)
	if !legacy.Equal(explicit) {
		t.Fatal("ipn EIDs with AllocatorID 0 should be equal")
	}

	twoTuple, err := ParseEID("ipn:5.7")
	if err != nil {
		t.Fatal(err)
	}
	threeTuple, err := ParseEID("ipn:0.5.7")
	if err != nil {
		t.Fatal(err)
	}
	if !twoTuple.Equal(threeTuple) {
		t.Fatal("2-tuple and 3-tuple ipn forms with allocator 0 should be equal")
	}
}

func TestSameNodeIgnoresService(t *testing.T) {
	a := MustParseEID("ipn:1.2.3")
	b := MustParseEID("ipn:1.2.99")
	if !a.SameNode(b) {
		t.Fatal("expected same node for differing service numbers")
	}

	c := MustParseEID("dtn://node-a/inbox")
	d := MustParseEID("dtn://node-a/outbox")
	if !c.SameNode(d) {
		t.Fatal("expected same node for differing dtn demux")
	}
	if a.SameNode(c) {
		t.Fatal("ipn and dtn EIDs must never be the same node")
	}
}

func TestNewLocalNodeIsLocalNode(t *testing.T) {
	e := NewLocalNode(7)
	if !e.IsLocalNode() {
		t.Fatal("expected IsLocalNode")
	}
	if e.NodeNumber != LocalNodeNumber {
		t.Fatalf("expected node number %d, got %d", LocalNodeNumber, e.NodeNumber)
	}
}

func TestEIDCBORRoundTrip(t *testing.T) {
	tests := []EID{
		Null(),
		NewDtn("node-a", nil),
		NewDtn("node-a", []string{"mail", "inbox"}),
		NewIpn(0, 5, 7),
		NewIpn(3, 5, 7),
	}

	for _, eid := range tests {
		var buf bytes.Buffer
		if err := eid.MarshalCBOR(&buf); err != nil {
			t.Fatalf("MarshalCBOR(%v): %v", eid, err)
		}

		dec := cbor.NewDecoder(buf.Bytes())
		s := cbor.OpenSequence(dec)
		out, _, err := UnmarshalEID(s, 8)
		if err != nil {
			t.Fatalf("UnmarshalEID(%v): %v", eid, err)
		}
		if !out.Equal(eid) {
			t.Fatalf("round trip mismatch: sent %v, got %v", eid, out)
		}
	}
}

func TestDtnDemuxPercentEscaping(t *testing.T) {
	eid := NewDtn("node a", []string{"a/b", "c d"})
	s := eid.String()

	out, err := ParseEID(s)
	if err != nil {
		t.Fatalf("ParseEID(%q): %v", s, err)
	}
	if !out.Equal(eid) {
		t.Fatalf("round trip through text form mismatch: sent %v, got %v", eid, out)
	}
}
