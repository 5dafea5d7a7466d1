// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// EIDScheme is the URI scheme number of an Endpoint ID, RFC 9171 §4.2.5.1.
type EIDScheme uint64

const (
	SchemeDtn EIDScheme = 1
	SchemeIpn EIDScheme = 2
)

// LocalNodeNumber is the reserved ipn node number "2^32-1" used for an
// endpoint scoped to this node only without naming the node explicitly.
const LocalNodeNumber uint32 = math.MaxUint32

// EIDKind discriminates the concrete shape stored in an EID. EID is kept
// as a flat struct (rather than an interface per scheme) because bundle
// identity and route-pattern folding both need cheap structural equality
// and hashing, which a sum-of-structs makes free.
type EIDKind int

const (
	EIDKindNull EIDKind = iota
	EIDKindIpn
	EIDKindDtn
)

// EID is a Bundle Protocol Endpoint Identifier (RFC 9171 §4.2.5). The zero
// value is Null ("dtn:none").
//
// Two EIDs compare equal (via Equal) iff structurally identical after
// normalisation: a legacy 2-tuple ipn encoding (allocator implicitly 0)
// and the 3-tuple encoding with AllocatorID==0 are the same EID.
type EID struct {
	Kind EIDKind

	// ipn fields.
	AllocatorID   uint32
	NodeNumber    uint32
	ServiceNumber uint32

	// dtn fields.
	NodeName string
	Demux    []string
}

// Null returns the "dtn:none" EID, the identity value of this type.
func Null() EID { return EID{Kind: EIDKindNull} }

// DtnNone is an alias for Null matching RFC 9171's "dtn:none" terminology.
func DtnNone() EID { return Null() }

// NewIpn builds a 3-tuple ipn EID.
func NewIpn(allocator, node, service uint32) EID {
	return EID{Kind: EIDKindIpn, AllocatorID: allocator, NodeNumber: node, ServiceNumber: service}
}

// NewLocalNode builds the reserved "ipn:!.service" form: allocator 0, node
// number 2^32-1.
func NewLocalNode(service uint32) EID {
	return NewIpn(0, LocalNodeNumber, service)
}

// IsLocalNode reports whether this EID is the reserved local-node form.
func (e EID) IsLocalNode() bool {
	return e.Kind == EIDKindIpn && e.AllocatorID == 0 && e.NodeNumber == LocalNodeNumber
}

// NewDtn builds a dtn EID from a node name and an ordered path of demux
// segments.
func NewDtn(nodeName string, demux []string) EID {
	return EID{Kind: EIDKindDtn, NodeName: nodeName, Demux: append([]string(nil), demux...)}
}

// IsNull reports whether this is the "dtn:none" identity endpoint.
func (e EID) IsNull() bool { return e.Kind == EIDKindNull }

// Equal reports structural equality after ipn tuple normalisation.
func (e EID) Equal(o EID) bool {
	if e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case EIDKindNull:
		return true
	case EIDKindIpn:
		return e.AllocatorID == o.AllocatorID && e.NodeNumber == o.NodeNumber && e.ServiceNumber == o.ServiceNumber
	case EIDKindDtn:
		if e.NodeName != o.NodeName || len(e.Demux) != len(o.Demux) {
			return false
		}
		for i := range e.Demux {
			if e.Demux[i] != o.Demux[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SameNode reports whether two EIDs address the same node, ignoring the
// service/demux suffix that picks out one application within that node.
func (e EID) SameNode(o EID) bool {
	if e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case EIDKindNull:
		return true
	case EIDKindIpn:
		return e.AllocatorID == o.AllocatorID && e.NodeNumber == o.NodeNumber
	case EIDKindDtn:
		return e.NodeName == o.NodeName
	default:
		return false
	}
}

func (e EID) String() string {
	switch e.Kind {
	case EIDKindNull:
		return "dtn:none"
	case EIDKindIpn:
		if e.AllocatorID == 0 {
			return fmt.Sprintf("ipn:%d.%d", e.NodeNumber, e.ServiceNumber)
		}
		return fmt.Sprintf("ipn:%d.%d.%d", e.AllocatorID, e.NodeNumber, e.ServiceNumber)
	case EIDKindDtn:
		segs := make([]string, len(e.Demux))
		for i, s := range e.Demux {
			segs[i] = url.PathEscape(s)
		}
		path := strings.Join(segs, "/")
		if path != "" {
			return fmt.Sprintf("dtn://%s/%s", url.PathEscape(e.NodeName), path)
		}
		return fmt.Sprintf("dtn://%s/", url.PathEscape(e.NodeName))
	default:
		return "<invalid eid>"
	}
}

// ParseEID parses the textual form of an EID ("ipn:2.1", "dtn://node/app",
// "dtn:none").
func ParseEID(s string) (EID, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return EID{}, fmt.Errorf("bpv7: %q is not a URI (missing scheme)", s)
	}

	switch scheme {
	case "dtn":
		if rest == "none" {
			return Null(), nil
		}
		if !strings.HasPrefix(rest, "//") {
			return EID{}, fmt.Errorf("bpv7: dtn URI %q must start with //", s)
		}
		rest = rest[2:]
		authority, path, _ := strings.Cut(rest, "/")
		nodeName, err := url.PathUnescape(authority)
		if err != nil {
			return EID{}, fmt.Errorf("bpv7: invalid percent-encoding in dtn authority: %w", err)
		}

		var demux []string
		if path != "" {
			for _, seg := range strings.Split(path, "/") {
				dec, err := url.PathUnescape(seg)
				if err != nil {
					return EID{}, fmt.Errorf("bpv7: invalid percent-encoding in dtn path: %w", err)
				}
				demux = append(demux, dec)
			}
		}
		return NewDtn(nodeName, demux), nil

	case "ipn":
		parts := strings.Split(rest, ".")
		nums := make([]uint64, len(parts))
		for i, p := range parts {
			n, err := strconv.ParseUint(p, 10, 32)
			if err != nil {
				return EID{}, fmt.Errorf("bpv7: invalid ipn number %q: %w", p, err)
			}
			nums[i] = n
		}
		switch len(nums) {
		case 2:
			return NewIpn(0, uint32(nums[0]), uint32(nums[1])), nil
		case 3:
			return NewIpn(uint32(nums[0]), uint32(nums[1]), uint32(nums[2])), nil
		default:
			return EID{}, fmt.Errorf("bpv7: ipn URI %q must have 2 or 3 dot-separated numbers", s)
		}

	default:
		return EID{}, fmt.Errorf("bpv7: unknown EID scheme %q", scheme)
	}
}

// MustParseEID is ParseEID but panics on error; for literals in tests and
// static configuration.
func MustParseEID(s string) EID {
	e, err := ParseEID(s)
	if err != nil {
		panic(err)
	}
	return e
}

// MarshalCBOR writes this EID as the 2-element [scheme, ssp] array defined
// by RFC 9171 §4.2.5.1.
func (e EID) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}

	switch e.Kind {
	case EIDKindNull:
		if err := cbor.WriteUint(w, uint64(SchemeDtn)); err != nil {
			return err
		}
		return cbor.WriteUint(w, 0)

	case EIDKindDtn:
		if err := cbor.WriteUint(w, uint64(SchemeDtn)); err != nil {
			return err
		}
		ssp := "//" + e.NodeName + "/" + strings.Join(e.Demux, "/")
		return cbor.WriteText(w, ssp)

	case EIDKindIpn:
		if err := cbor.WriteUint(w, uint64(SchemeIpn)); err != nil {
			return err
		}
		if e.AllocatorID == 0 {
			if err := cbor.WriteArrayHeader(w, 2); err != nil {
				return err
			}
			if err := cbor.WriteUint(w, uint64(e.NodeNumber)); err != nil {
				return err
			}
			return cbor.WriteUint(w, uint64(e.ServiceNumber))
		}
		if err := cbor.WriteArrayHeader(w, 3); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, uint64(e.AllocatorID)); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, uint64(e.NodeNumber)); err != nil {
			return err
		}
		return cbor.WriteUint(w, uint64(e.ServiceNumber))

	default:
		return fmt.Errorf("bpv7: cannot marshal EID of kind %d", e.Kind)
	}
}

// UnmarshalEID reads an EID off s, returning the combined shortest verdict.
func UnmarshalEID(s *cbor.Series, maxRecursion int) (EID, bool, error) {
	child, err := s.OpenArray(maxRecursion)
	if err != nil {
		return EID{}, false, err
	}
	if n, ok := child.Count(); !ok || n != 2 {
		return EID{}, false, fmt.Errorf("bpv7: EID expects a 2-element array")
	}

	scheme, shortest, err := child.ParseUint()
	if err != nil {
		return EID{}, false, err
	}

	switch EIDScheme(scheme) {
	case SchemeDtn:
		v, _, tagShortest, err := child.Next()
		shortest = shortest && tagShortest
		if err != nil {
			return EID{}, shortest, err
		}
		switch v.Kind {
		case cbor.KindUint:
			if v.Uint != 0 {
				return EID{}, shortest, fmt.Errorf("bpv7: dtn SSP integer must be 0 (none)")
			}
			return Null(), shortest, nil
		case cbor.KindText:
			ssp := v.Text
			if !strings.HasPrefix(ssp, "//") {
				return EID{}, shortest, fmt.Errorf("bpv7: dtn SSP %q must start with //", ssp)
			}
			authority, path, _ := strings.Cut(ssp[2:], "/")
			var demux []string
			if path != "" {
				demux = strings.Split(path, "/")
			}
			return NewDtn(authority, demux), shortest, nil
		default:
			return EID{}, shortest, fmt.Errorf("bpv7: unexpected dtn SSP encoding")
		}

	case SchemeIpn:
		inner, err := child.OpenArray(maxRecursion - 1)
		if err != nil {
			return EID{}, shortest, err
		}
		n, ok := inner.Count()
		if !ok {
			return EID{}, shortest, fmt.Errorf("bpv7: ipn SSP array must be definite-length")
		}

		switch n {
		case 2:
			node, s1, err := inner.ParseUint()
			if err != nil {
				return EID{}, shortest, err
			}
			service, s2, err := inner.ParseUint()
			if err != nil {
				return EID{}, shortest, err
			}
			return NewIpn(0, uint32(node), uint32(service)), shortest && s1 && s2, nil
		case 3:
			alloc, s1, err := inner.ParseUint()
			if err != nil {
				return EID{}, shortest, err
			}
			node, s2, err := inner.ParseUint()
			if err != nil {
				return EID{}, shortest, err
			}
			service, s3, err := inner.ParseUint()
			if err != nil {
				return EID{}, shortest, err
			}
			return NewIpn(uint32(alloc), uint32(node), uint32(service)), shortest && s1 && s2 && s3, nil
		default:
			return EID{}, shortest, fmt.Errorf("bpv7: ipn SSP must have 2 or 3 elements, got %d", n)
		}

	default:
		return EID{}, shortest, fmt.Errorf("bpv7: unknown EID scheme number %d", scheme)
	}
}
