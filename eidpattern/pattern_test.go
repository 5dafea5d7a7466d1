// SPDX-License-Identifier: GPL-3.0-or-later

package eidpattern

import (
	"testing"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

func TestAnySchemeMatchesEverything(t *testing.T) {
	p, err := Parse("*:**")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.Matches(bpv7.Null()) {
		t.Error("any-scheme pattern must match Null")
	}
	if !p.Matches(bpv7.NewIpn(0, 1, 1)) {
		t.Error("any-scheme pattern must match an ipn EID")
	}
}

func TestIpnWildcardAndRange(t *testing.T) {
	p, err := Parse("ipn:*.[10-20,30].*")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cases := []struct {
		eid  bpv7.EID
		want bool
	}{
		{bpv7.NewIpn(5, 15, 99), true},
		{bpv7.NewIpn(5, 30, 99), true},
		{bpv7.NewIpn(5, 25, 99), false},
		{bpv7.NewDtn("node", nil), false},
	}
	for _, c := range cases {
		if got := p.Matches(c.eid); got != c.want {
			t.Errorf("Matches(%v) = %v, want %v", c.eid, got, c.want)
		}
	}
}

func TestIpnExact(t *testing.T) {
	p, err := Parse("ipn:1.2.3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	eid, ok := p.IsExact()
	if !ok {
		t.Fatal("expected exact pattern")
	}
	if !eid.Equal(bpv7.NewIpn(1, 2, 3)) {
		t.Errorf("got %v", eid)
	}

	p2, _ := Parse("ipn:1.*.3")
	if _, ok := p2.IsExact(); ok {
		t.Error("wildcard pattern must not be exact")
	}
}

func TestDtnSegmentsAndMultiWildcard(t *testing.T) {
	p, err := Parse("dtn://node.example/app/**")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.Matches(bpv7.NewDtn("node.example", []string{"app"})) {
		t.Error("must match exact path prefix with nothing after")
	}
	if !p.Matches(bpv7.NewDtn("node.example", []string{"app", "sub", "leaf"})) {
		t.Error("must match path prefix with trailing segments")
	}
	if p.Matches(bpv7.NewDtn("node.example", []string{"other"})) {
		t.Error("must not match a different prefix")
	}
}

func TestDtnRegexSegment(t *testing.T) {
	p, err := Parse("dtn://node/[^app.*$]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.Matches(bpv7.NewDtn("node", []string{"app-service"})) {
		t.Error("regex should match")
	}
	if p.Matches(bpv7.NewDtn("node", []string{"other"})) {
		t.Error("regex should not match")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("xyz:foo"); err == nil {
		t.Error("expected InvalidScheme error")
	}
	if _, err := Parse("ipn:1.2"); err == nil {
		t.Error("expected missing-component error")
	}
	if _, err := Parse("dtn://node/[unterminated"); err == nil {
		t.Error("expected ExpectingRegEx-style error")
	}
}
