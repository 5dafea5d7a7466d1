// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/rib"
	"github.com/hardy-dtn/bpa-go/store"
)

// dispatch runs spec §4.5.2's dispatch loop for a bundle already persisted
// as meta. It is entered directly from Ingress, from Send, and from
// Dispatcher.reenter (waiting-bundle poller re-admission); fragment
// reassembly runs inside it.
func (d *Dispatcher) dispatch(meta store.BundleMetadata, bndl *bpv7.Bundle) {
	if isExpired(bndl) {
		d.drop(meta, bndl, bpv7.ReasonLifetimeExpired)
		return
	}
	if limit, count, present, err := bndl.HopCount(); err == nil && present && count >= limit {
		d.drop(meta, bndl, bpv7.ReasonHopLimitExceeded)
		return
	}

	id := bndl.ID()
	if id.IsFragment {
		reassembled, newMeta, ok, err := d.reassemble(meta, bndl)
		if err != nil {
			log.WithError(err).WithField("id", id.String()).Warn("dispatcher: fragment reassembly failed")
			d.drop(meta, bndl, bpv7.ReasonBlockUnintelligible)
			return
		}
		if !ok {
			// More fragments needed; nothing further to do until the next
			// one arrives.
			return
		}
		meta, bndl = newMeta, reassembled
	}

	res, err := d.rib.Find(bndl.Primary.Destination)
	if err != nil {
		var drop *rib.DropError
		reason := bpv7.ReasonNoKnownRouteToDestination
		if errors.As(err, &drop) && drop.Reason != nil {
			reason = *drop.Reason
		}
		d.drop(meta, bndl, reason)
		return
	}

	switch res.Kind {
	case rib.ResultAdminEndpoint:
		d.metrics.RecordDispatched("admin_endpoint")
		d.handleAdministrativeRecord(meta, bndl)
	case rib.ResultDeliver:
		d.metrics.RecordDispatched("deliver")
		d.deliverLocal(meta, bndl, res.Service)
	case rib.ResultForward:
		if len(res.CLAs) == 0 {
			d.metrics.RecordDispatched("wait")
			d.enterWaiting(meta, res.Until)
			return
		}
		d.metrics.RecordDispatched("forward")
		d.forward(meta, bndl, res.CLAs)
	default:
		d.metrics.RecordDispatched("wait")
		d.enterWaiting(meta, res.Until)
	}
}

// isExpired reports whether bndl's age has reached its lifetime budget, per
// §4.5.2's "creation + age >= now up to lifetime budget". A relay-recorded
// Bundle Age block is honoured when it implies more elapsed time than the
// wall clock does (the bundle having already spent time in another node's
// queue before reaching this one).
func isExpired(bndl *bpv7.Bundle) bool {
	lifetime := time.Duration(bndl.Primary.Lifetime) * time.Millisecond

	var elapsed time.Duration
	if bndl.Primary.CreationTimestamp.IsZeroTime() {
		age, present, err := bndl.BundleAge()
		if err != nil || !present {
			return true
		}
		elapsed = time.Duration(age) * time.Millisecond
	} else {
		elapsed = time.Since(bndl.Primary.CreationTimestamp.Time.Time())
	}
	if age, present, err := bndl.BundleAge(); err == nil && present {
		if relayed := time.Duration(age) * time.Millisecond; relayed > elapsed {
			elapsed = relayed
		}
	}
	return elapsed >= lifetime
}

// expiryDeadline returns the wall-clock time at which bndl's lifetime budget
// is exhausted, used to cap a ForwardAckPending window.
func expiryDeadline(bndl *bpv7.Bundle) time.Time {
	lifetime := time.Duration(bndl.Primary.Lifetime) * time.Millisecond
	if bndl.Primary.CreationTimestamp.IsZeroTime() {
		return time.Now().Add(lifetime)
	}
	return bndl.Primary.CreationTimestamp.Time.Time().Add(lifetime)
}

// drop emits a Deletion status report (if requested) and tombstones meta.
func (d *Dispatcher) drop(meta store.BundleMetadata, bndl *bpv7.Bundle, reason bpv7.ReasonCode) {
	d.metrics.RecordDropped(fmt.Sprintf("%d", reason))
	d.maybeEmitStatusReport(bndl, bpv7.DeletedBundle, reason)
	if err := d.store.Tombstone(meta, d.cfg.TombstoneLifetime); err != nil {
		log.WithError(err).WithField("id", bndl.ID().String()).Warn("dispatcher: failed to tombstone dropped bundle")
	}
}

// deliverLocal hands bndl to the named local service, then emits a
// Delivered status report and tombstones the record (§4.5.2's
// "Deliver(service) -> deliver then drop").
func (d *Dispatcher) deliverLocal(meta store.BundleMetadata, bndl *bpv7.Bundle, service string) {
	svc, ok := d.service(service)
	if !ok {
		d.drop(meta, bndl, bpv7.ReasonDestinationEIDUnintelligible)
		return
	}
	if err := svc.Deliver(bndl); err != nil {
		log.WithError(err).WithField("service", service).Warn("dispatcher: local service delivery failed")
	}
	d.metrics.RecordDelivered()
	d.maybeEmitStatusReport(bndl, bpv7.DeliveredBundle, bpv7.ReasonNoAdditionalInformation)
	if err := d.store.Tombstone(meta, d.cfg.TombstoneLifetime); err != nil {
		log.WithError(err).WithField("id", bndl.ID().String()).Warn("dispatcher: failed to tombstone delivered bundle")
	}
}

// enterWaiting transitions meta to Waiting(until) and lets the store's
// poller re-admit it later.
func (d *Dispatcher) enterWaiting(meta store.BundleMetadata, until time.Time) {
	if until.IsZero() {
		until = time.Now().Add(d.cfg.ForwardAckDefaultWindow)
	}
	if err := d.store.Metadata.UpdateStatus(meta.Id, store.StatusWaiting, "", until); err != nil {
		log.WithError(err).WithField("id", meta.Id).Warn("dispatcher: failed to mark bundle waiting")
	}
}
