// SPDX-License-Identifier: GPL-3.0-or-later

package rib

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// Table is the routing information base: a mutex-guarded, pattern-keyed
// entry list plus the waiter registry that backs WaitForRoute.
type Table struct {
	mu      sync.RWMutex
	entries []Entry

	waitMu  sync.Mutex
	waiters map[string][]*waiter
}

// NewTable builds an empty routing table.
func NewTable() *Table {
	return &Table{waiters: make(map[string][]*waiter)}
}

// AddEntry inserts e, replacing any existing entry with the identical
// (pattern, source, action, priority) tuple in place, then wakes every
// waiter whose watched EID this pattern now matches.
func (t *Table) AddEntry(e Entry) {
	t.mu.Lock()
	replaced := false
	for i, existing := range t.entries {
		if existing.identity() == e.identity() {
			t.entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		t.entries = append(t.entries, e)
	}
	t.mu.Unlock()

	t.wake(e.Pattern)
}

// RemoveEntry deletes the entry matching the identical (pattern, source,
// action, priority) tuple, if any, and wakes matching waiters.
func (t *Table) RemoveEntry(e Entry) {
	t.mu.Lock()
	for i, existing := range t.entries {
		if existing.identity() == e.identity() {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	t.wake(e.Pattern)
}

// Find resolves destination against the table per spec §4.6's algorithm.
func (t *Table) Find(destination bpv7.EID) (Result, error) {
	return t.find(destination, map[string]bool{})
}

func (t *Table) find(destination bpv7.EID, visited map[string]bool) (Result, error) {
	key := destination.String()
	if visited[key] {
		return Result{}, ErrNoKnownRoute
	}
	visited[key] = true

	t.mu.RLock()
	var matches []Entry
	for _, e := range t.entries {
		if e.Pattern.Matches(destination) {
			matches = append(matches, e)
		}
	}
	t.mu.RUnlock()

	if len(matches) == 0 {
		return Result{}, ErrNoKnownRoute
	}

	minPriority := matches[0].Priority
	for _, e := range matches[1:] {
		if e.Priority < minPriority {
			minPriority = e.Priority
		}
	}
	var tier []Entry
	for _, e := range matches {
		if e.Priority == minPriority {
			tier = append(tier, e)
		}
	}
	sort.Slice(tier, func(i, j int) bool {
		if tier[i].Source != tier[j].Source {
			return tier[i].Source < tier[j].Source
		}
		return tier[i].Action.key() < tier[j].Action.key()
	})

	acc := Result{Kind: ResultForward}
	var until time.Time
	viaSetUntil := false

	for _, e := range tier {
		switch e.Action.Kind {
		case ActionDrop:
			return Result{}, &DropError{Reason: e.Action.Drop}

		case ActionAdminEndpoint:
			return Result{Kind: ResultAdminEndpoint}, nil

		case ActionLocal:
			return Result{Kind: ResultDeliver, Service: e.Action.Service}, nil

		case ActionForward:
			acc.CLAs = append(acc.CLAs, e.Action.CLA)

		case ActionVia:
			sub, err := t.find(e.Action.Via, visited)
			if err != nil {
				return Result{}, err
			}
			switch sub.Kind {
			case ResultAdminEndpoint, ResultDeliver:
				return sub, nil
			case ResultForward:
				acc.CLAs = append(acc.CLAs, sub.CLAs...)
				if !sub.Until.IsZero() {
					if until.IsZero() || sub.Until.Before(until) {
						until = sub.Until
					}
					viaSetUntil = true
				}
			}

		case ActionStore:
			if e.Action.Until.Before(time.Now()) {
				continue
			}
			if !viaSetUntil {
				until = e.Action.Until
			}
			acc.Until = until
			shuffleCLAs(acc.CLAs)
			return acc, nil
		}
	}

	acc.Until = until
	shuffleCLAs(acc.CLAs)
	return acc, nil
}

// shuffleCLAs applies the ECMP fair shuffle RFC-style: equal-cost candidates
// are reordered with a fair RNG before the caller tries them in order.
func shuffleCLAs(clas []string) {
	if len(clas) > 1 {
		rand.Shuffle(len(clas), func(i, j int) {
			clas[i], clas[j] = clas[j], clas[i]
		})
	}
}
