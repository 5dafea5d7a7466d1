// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/rib"
	"github.com/hardy-dtn/bpa-go/store"
)

// handleAdministrativeRecord implements §4.5.5. "The referenced bundle's
// source is a local service" is answered by asking the RIB the same
// question it would ask for any delivery: if looking up that source EID
// resolves to Deliver(service), the service that would have received a
// bundle addressed there is the one that originated it.
func (d *Dispatcher) handleAdministrativeRecord(meta store.BundleMetadata, bndl *bpv7.Bundle) {
	if !bndl.IsAdministrativeRecord() {
		d.drop(meta, bndl, bpv7.ReasonBlockUnintelligible)
		return
	}
	payload, ok := bndl.PayloadBlock()
	if !ok {
		d.drop(meta, bndl, bpv7.ReasonBlockUnintelligible)
		return
	}

	sr, err := bpv7.DecodeAdministrativeRecord(payload.Data)
	if err != nil {
		log.WithError(err).Warn("dispatcher: malformed administrative record")
		d.drop(meta, bndl, bpv7.ReasonBlockUnintelligible)
		return
	}

	// Spec names this drop reason DestinationEndpointIDUnavailable, which
	// has no dedicated RFC 9171 §6.1.2 reason code; ReasonDestinationEIDUnintelligible
	// is the closest existing code (the referenced source does not resolve
	// to a deliverable local endpoint) and is reused here rather than
	// minting a non-standard reason value.
	res, err := d.rib.Find(sr.RefBundle.Source)
	if err != nil || res.Kind != rib.ResultDeliver {
		d.drop(meta, bndl, bpv7.ReasonDestinationEIDUnintelligible)
		return
	}
	svc, ok := d.service(res.Service)
	if !ok {
		d.drop(meta, bndl, bpv7.ReasonDestinationEIDUnintelligible)
		return
	}

	for _, pos := range sr.StatusInformations() {
		item := sr.StatusInformation[pos]
		svc.OnStatusNotify(sr.RefBundle, bndl.Primary.Source, pos, sr.ReportReason, item.Time, item.StatusRequested)
	}

	if err := d.store.Tombstone(meta, d.cfg.TombstoneLifetime); err != nil {
		log.WithError(err).Warn("dispatcher: failed to tombstone processed administrative record")
	}
}
