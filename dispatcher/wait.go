// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"time"

	"github.com/hardy-dtn/bpa-go/store"
)

// sleepResult distinguishes a wait that ran its course from one cut short
// by dispatcher shutdown or a hand-back to the store's poller.
type sleepResult int

const (
	sleepElapsed sleepResult = iota
	sleepCancelled
)

// sleep blocks for dur or until the dispatcher is stopped, whichever comes
// first. A nil Dispatcher.stop (Run was never started) degrades this to a
// plain timer, which is correct for direct/test use of forward().
func (d *Dispatcher) sleep(dur time.Duration) sleepResult {
	if dur <= 0 {
		return sleepElapsed
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return sleepElapsed
	case <-d.stop:
		return sleepCancelled
	}
}

// waitUntil implements §4.5.4's wait discipline: an offline wait (longer
// than the store's sample interval) hands the bundle back to Waiting status
// and returns cancelled, since nothing further happens on this call stack
// until the poller re-admits it; a short wait sleeps inline.
func (d *Dispatcher) waitUntil(meta store.BundleMetadata, until time.Time) sleepResult {
	remaining := time.Until(until)
	if remaining > d.store.WaitSampleInterval {
		d.enterWaiting(meta, until)
		return sleepCancelled
	}
	return d.sleep(remaining)
}
