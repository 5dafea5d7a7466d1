// SPDX-License-Identifier: GPL-3.0-or-later

package eidpattern

import (
	"regexp"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// ItemScheme discriminates which per-scheme matcher an Item holds.
type ItemScheme int

const (
	ItemIpn ItemScheme = iota
	ItemDtn
)

// IpnRange is an inclusive [Lo, Hi] bound within a bracketed range list.
type IpnRange struct {
	Lo, Hi uint32
}

func (r IpnRange) contains(v uint32) bool { return v >= r.Lo && v <= r.Hi }

// IpnComponent matches one of an ipn EID's three numeric components:
// either a wildcard, or a union of one or more inclusive ranges (a bare
// number parses as a single Lo==Hi range).
type IpnComponent struct {
	Wildcard bool
	Ranges   []IpnRange
}

func (c IpnComponent) matches(v uint32) bool {
	if c.Wildcard {
		return true
	}
	for _, r := range c.Ranges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

// exact returns the single value this component names, if it names
// exactly one.
func (c IpnComponent) exact() (uint32, bool) {
	if c.Wildcard || len(c.Ranges) != 1 {
		return 0, false
	}
	if c.Ranges[0].Lo != c.Ranges[0].Hi {
		return 0, false
	}
	return c.Ranges[0].Lo, true
}

// IpnItem matches an ipn EID's (allocator, node, service) triple.
type IpnItem struct {
	Allocator IpnComponent
	Node      IpnComponent
	Service   IpnComponent
}

func (it IpnItem) matches(e bpv7.EID) bool {
	if e.Kind != bpv7.EIDKindIpn {
		return false
	}
	return it.Allocator.matches(e.AllocatorID) && it.Node.matches(e.NodeNumber) && it.Service.matches(e.ServiceNumber)
}

func (it IpnItem) exact() (bpv7.EID, bool) {
	a, ok := it.Allocator.exact()
	if !ok {
		return bpv7.EID{}, false
	}
	n, ok := it.Node.exact()
	if !ok {
		return bpv7.EID{}, false
	}
	s, ok := it.Service.exact()
	if !ok {
		return bpv7.EID{}, false
	}
	return bpv7.NewIpn(a, n, s), true
}

// SegmentKind discriminates one dtn authority or path segment matcher.
type SegmentKind int

const (
	SegExact SegmentKind = iota
	SegRegex
	SegSingleWildcard
	SegMultiWildcard // only valid as the authority or as the Last segment
)

// Segment matches one dtn authority or path component.
type Segment struct {
	Kind  SegmentKind
	Exact string
	Regex *regexp.Regexp
	raw   string // the regex source, kept for String
}

func (s Segment) matches(v string) bool {
	switch s.Kind {
	case SegExact:
		return s.Exact == v
	case SegRegex:
		return s.Regex.MatchString(v)
	case SegSingleWildcard, SegMultiWildcard:
		return true
	default:
		return false
	}
}

func (s Segment) exact() (string, bool) {
	if s.Kind == SegExact {
		return s.Exact, true
	}
	return "", false
}

// DtnItem matches a dtn EID's authority and demux path.
type DtnItem struct {
	Authority Segment
	Segments  []Segment // non-last path segments, in order
	Last      Segment   // the final segment pattern; SegMultiWildcard means "zero or more remaining"
}

func (it DtnItem) matches(e bpv7.EID) bool {
	if e.Kind != bpv7.EIDKindDtn {
		return false
	}
	if it.Authority.Kind == SegMultiWildcard {
		return true
	}
	if !it.Authority.matches(e.NodeName) {
		return false
	}

	if it.Last.Kind == SegMultiWildcard {
		if len(e.Demux) < len(it.Segments) {
			return false
		}
		for i, seg := range it.Segments {
			if !seg.matches(e.Demux[i]) {
				return false
			}
		}
		return true
	}

	if len(e.Demux) != len(it.Segments)+1 {
		return false
	}
	for i, seg := range it.Segments {
		if !seg.matches(e.Demux[i]) {
			return false
		}
	}
	return it.Last.matches(e.Demux[len(e.Demux)-1])
}

func (it DtnItem) exact() (bpv7.EID, bool) {
	if it.Last.Kind == SegMultiWildcard {
		return bpv7.EID{}, false
	}
	authority, ok := it.Authority.exact()
	if !ok {
		return bpv7.EID{}, false
	}
	demux := make([]string, 0, len(it.Segments)+1)
	for _, seg := range it.Segments {
		v, ok := seg.exact()
		if !ok {
			return bpv7.EID{}, false
		}
		demux = append(demux, v)
	}
	last, ok := it.Last.exact()
	if !ok {
		return bpv7.EID{}, false
	}
	demux = append(demux, last)
	return bpv7.NewDtn(authority, demux), true
}

// Item is one "|"-separated alternative of a Pattern.
type Item struct {
	Scheme ItemScheme
	Ipn    IpnItem
	Dtn    DtnItem
}

func (it Item) matches(e bpv7.EID) bool {
	switch it.Scheme {
	case ItemIpn:
		return it.Ipn.matches(e)
	case ItemDtn:
		return it.Dtn.matches(e)
	default:
		return false
	}
}

func (it Item) exact() (bpv7.EID, bool) {
	switch it.Scheme {
	case ItemIpn:
		return it.Ipn.exact()
	case ItemDtn:
		return it.Dtn.exact()
	default:
		return bpv7.EID{}, false
	}
}

// Pattern is a full eid-pattern: either the any-scheme wildcard "*:**", or
// a non-empty set of Items matched by union.
type Pattern struct {
	AnyScheme bool
	Items     []Item
}

// Matches reports whether e satisfies this pattern.
func (p Pattern) Matches(e bpv7.EID) bool {
	if p.AnyScheme {
		return true
	}
	for _, it := range p.Items {
		if it.matches(e) {
			return true
		}
	}
	return false
}

// IsExact returns the single EID this pattern names, if it names exactly
// one (no wildcards, no regex, no multi-element range, exactly one item).
func (p Pattern) IsExact() (bpv7.EID, bool) {
	if p.AnyScheme || len(p.Items) != 1 {
		return bpv7.EID{}, false
	}
	return p.Items[0].exact()
}

func (p Pattern) String() string {
	if p.AnyScheme {
		return "*:**"
	}
	s := ""
	for i, it := range p.Items {
		if i > 0 {
			s += "|"
		}
		s += itemString(it)
	}
	return s
}
