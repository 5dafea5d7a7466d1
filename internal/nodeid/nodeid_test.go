// SPDX-License-Identifier: GPL-3.0-or-later

package nodeid

import (
	"testing"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

func TestValidateAcceptsSingletonIds(t *testing.T) {
	for _, s := range []string{"dtn://node-a/", "ipn:1.2.0"} {
		eid := bpv7.MustParseEID(s)
		if err := Validate(eid); err != nil {
			t.Errorf("Validate(%q): unexpected error: %v", s, err)
		}
	}
}

func TestValidateRejectsServiceQualifiedIds(t *testing.T) {
	for _, s := range []string{"dtn://node-a/app", "ipn:1.2.3"} {
		eid := bpv7.MustParseEID(s)
		if err := Validate(eid); err == nil {
			t.Errorf("Validate(%q): expected an error, got nil", s)
		}
	}
}

func TestValidateRejectsNullAndLocalNodeNumber(t *testing.T) {
	if err := Validate(bpv7.MustParseEID("dtn:none")); err == nil {
		t.Error("Validate(dtn:none): expected an error, got nil")
	}

	local := bpv7.EID{Kind: bpv7.EIDKindIpn, NodeNumber: bpv7.LocalNodeNumber, ServiceNumber: 0}
	if err := Validate(local); err == nil {
		t.Error("Validate(ipn with LocalNodeNumber): expected an error, got nil")
	}
}

func TestIsAdminEndpoint(t *testing.T) {
	node := bpv7.MustParseEID("dtn://node-a/")
	same := bpv7.MustParseEID("dtn://node-a/")
	other := bpv7.MustParseEID("dtn://node-b/")

	if !IsAdminEndpoint(node, same) {
		t.Error("expected node to be recognized as its own admin endpoint")
	}
	if IsAdminEndpoint(node, other) {
		t.Error("expected a different node's id to not match")
	}
	if IsAdminEndpoint(bpv7.MustParseEID("dtn://node-a/app"), same) {
		t.Error("a non-singleton node EID must never be treated as a valid admin endpoint")
	}
}
