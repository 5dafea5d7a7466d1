// SPDX-License-Identifier: GPL-3.0-or-later

package rib

import (
	"sync"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/eidpattern"
)

// WaitOutcome is the result of WaitForRoute: the table changed in a way
// that might affect the watched destination, the timeout elapsed first, or
// the caller's cancel channel fired.
type WaitOutcome int

const (
	WaitRouteChange WaitOutcome = iota
	WaitTimeout
	WaitCancelled
)

type waiter struct {
	eid    bpv7.EID
	ch     chan struct{}
	closed sync.Once
}

func (w *waiter) close() {
	w.closed.Do(func() { close(w.ch) })
}

// WaitForRoute blocks until either some AddEntry/RemoveEntry call installs
// or changes an entry whose pattern matches eid (WaitRouteChange), duration
// elapses (WaitTimeout), or cancel fires (WaitCancelled).
func (t *Table) WaitForRoute(eid bpv7.EID, duration time.Duration, cancel <-chan struct{}) WaitOutcome {
	w := &waiter{eid: eid, ch: make(chan struct{})}

	t.waitMu.Lock()
	t.waiters[eid.String()] = append(t.waiters[eid.String()], w)
	t.waitMu.Unlock()

	defer t.removeWaiter(w)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-w.ch:
		return WaitRouteChange
	case <-timer.C:
		return WaitTimeout
	case <-cancel:
		return WaitCancelled
	}
}

func (t *Table) removeWaiter(target *waiter) {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()

	key := target.eid.String()
	ws := t.waiters[key]
	for i, w := range ws {
		if w == target {
			t.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(t.waiters[key]) == 0 {
		delete(t.waiters, key)
	}
}

// wake cancels every waiter whose watched EID pattern matches, signalling a
// route change. Because Table has no registry of "every EID anyone might
// ever watch", it tests each live waiter's EID against pattern directly
// rather than testing pattern against a address space.
func (t *Table) wake(pattern eidpattern.Pattern) {
	t.waitMu.Lock()
	var toClose []*waiter
	for _, ws := range t.waiters {
		for _, w := range ws {
			if pattern.Matches(w.eid) {
				toClose = append(toClose, w)
			}
		}
	}
	t.waitMu.Unlock()

	for _, w := range toClose {
		t.removeWaiter(w)
		w.close()
	}
}
