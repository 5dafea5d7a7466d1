// SPDX-License-Identifier: GPL-3.0-or-later

// Package rib implements the routing information base: a pattern-keyed
// table of forwarding policy, generalising the teacher's pluggable
// pkg/routing.Algorithm (epidemic/spray/prophet/DTLSR) into the spec's
// single declarative lookup table.
package rib

import (
	"fmt"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/eidpattern"
)

// ActionKind distinguishes the RIB entry action variants of spec §3's RIB
// entry glossary.
type ActionKind int

const (
	ActionAdminEndpoint ActionKind = iota
	ActionLocal
	ActionForward
	ActionVia
	ActionStore
	ActionDrop
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdminEndpoint:
		return "AdminEndpoint"
	case ActionLocal:
		return "Local"
	case ActionForward:
		return "Forward"
	case ActionVia:
		return "Via"
	case ActionStore:
		return "Store"
	case ActionDrop:
		return "Drop"
	default:
		return "Unknown"
	}
}

// Action is one of AdminEndpoint | Local(service) | Forward(cla) | Via(eid)
// | Store(until) | Drop(reason).
type Action struct {
	Kind ActionKind

	Service string    // ActionLocal
	CLA     string    // ActionForward
	Via     bpv7.EID  // ActionVia
	Until   time.Time // ActionStore
	Drop    *bpv7.ReasonCode
}

// key returns a value comparable with ==, used both for the replace-in-place
// rule and for tie-break sorting within a priority tier.
func (a Action) key() string {
	switch a.Kind {
	case ActionLocal:
		return a.Kind.String() + ":" + a.Service
	case ActionForward:
		return a.Kind.String() + ":" + a.CLA
	case ActionVia:
		return a.Kind.String() + ":" + a.Via.String()
	case ActionStore:
		return a.Kind.String() + ":" + a.Until.String()
	case ActionDrop:
		if a.Drop != nil {
			return fmt.Sprintf("%s:%d", a.Kind, *a.Drop)
		}
		return a.Kind.String() + ":none"
	default:
		return a.Kind.String()
	}
}

func (a Action) Equal(b Action) bool {
	return a.key() == b.key()
}

// Entry is a single RIB row: destination pattern, the action to take for a
// match, the name of whatever installed it (routing daemon, config file,
// CLA), and a priority used to select the participating tier at lookup time
// (lower sorts first).
type Entry struct {
	Pattern  eidpattern.Pattern
	Action   Action
	Source   string
	Priority uint32
}

// identity is the replace-in-place key: two entries with an identical
// (pattern, source, action, priority) tuple are the same entry.
func (e Entry) identity() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", e.Pattern.String(), e.Source, e.Action.key(), e.Priority)
}
