// SPDX-License-Identifier: GPL-3.0-or-later

// Package nodeid validates that an EID is fit to name this agent's own
// node: a singleton administrative endpoint, never a service-qualified or
// wildcard one. spec.md §9 notes that the original implementation's
// admin_endpoints.rs and node_id.rs disagreed on this check -- node_id.rs
// additionally rejected the ipn node number "2^32-1". This package makes
// the admin_endpoints.rs singleton check and also rejects that node number
// (bpv7.LocalNodeNumber) and node number 0; bpv7.EID's uint32 AllocatorID
// typing already keeps an out-of-range allocator ID from reaching it.
package nodeid

import "github.com/hardy-dtn/bpa-go/bpv7"

// Validate reports whether eid can serve as this agent's own node id: a
// dtn EID with no demux path (the "dtn://node/" administrative endpoint),
// or an ipn EID with service number 0 and a node number that is neither 0
// nor the reserved local-node sentinel.
func Validate(eid bpv7.EID) error {
	switch eid.Kind {
	case bpv7.EIDKindDtn:
		if eid.NodeName == "" {
			return &ValidationError{EID: eid, Reason: "dtn node name is empty"}
		}
		if len(eid.Demux) != 0 {
			return &ValidationError{EID: eid, Reason: "dtn node id must not carry a demux path"}
		}
		return nil

	case bpv7.EIDKindIpn:
		if eid.ServiceNumber != 0 {
			return &ValidationError{EID: eid, Reason: "ipn node id must use service number 0"}
		}
		if eid.NodeNumber == 0 || eid.NodeNumber == bpv7.LocalNodeNumber {
			return &ValidationError{EID: eid, Reason: "ipn node number must be a concrete, non-zero node"}
		}
		return nil

	default:
		return &ValidationError{EID: eid, Reason: "dtn:none cannot name a node"}
	}
}

// ValidationError reports why an EID failed Validate.
type ValidationError struct {
	EID    bpv7.EID
	Reason string
}

func (e *ValidationError) Error() string {
	return "nodeid: " + e.EID.String() + ": " + e.Reason
}

// IsAdminEndpoint reports whether candidate is the administrative endpoint
// of node: the same node, scoped down to the singleton (no service, no
// demux) form. The RIB's ActionAdminEndpoint result (spec §4.6) is
// produced for a bundle whose destination is exactly this.
func IsAdminEndpoint(node, candidate bpv7.EID) bool {
	if Validate(node) != nil {
		return false
	}
	return node.Equal(candidate)
}
