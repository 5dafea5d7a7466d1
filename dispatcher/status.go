// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// maybeEmitStatusReport runs the three gates of §4.5.7 before building and
// sending a status report bundle for bndl: global policy, the per-bundle
// request flag for pos, and a non-Null report_to. A bundle that is itself
// an administrative record never gets a report.
func (d *Dispatcher) maybeEmitStatusReport(bndl *bpv7.Bundle, pos bpv7.StatusInformationPos, reason bpv7.ReasonCode) {
	if !d.cfg.StatusReportsEnabled {
		return
	}
	if bndl.IsAdministrativeRecord() {
		return
	}
	if !statusRequested(bndl.Primary.Flags, pos) {
		return
	}
	if bndl.Primary.ReportTo.IsNull() {
		return
	}

	d.metrics.RecordStatusReport(fmt.Sprintf("%d", pos))
	sr := bpv7.NewStatusReport(bndl, pos, reason, bpv7.DtnTimeNow())

	report, err := bpv7.NewBuilder().
		Source(d.cfg.LocalNode).
		Destination(bndl.Primary.ReportTo).
		CreationTimestampNow().
		Lifetime(time.Duration(bndl.Primary.Lifetime) * time.Millisecond).
		AdministrativeRecordPayload(sr).
		Build()
	if err != nil {
		log.WithError(err).Warn("dispatcher: failed to build status report bundle")
		return
	}
	if err := d.Send(report); err != nil {
		log.WithError(err).Warn("dispatcher: failed to send status report bundle")
	}
}

// maybeEmitReceptionReport is the §4.5.1 step 4 special case: the reason is
// BlockUnsupported when any block triggered report-on-failure, else
// NoAdditionalInformation.
func (d *Dispatcher) maybeEmitReceptionReport(bndl *bpv7.Bundle, reportUnsupported map[uint64]bool) {
	reason := bpv7.ReasonNoAdditionalInformation
	if len(reportUnsupported) > 0 {
		reason = bpv7.ReasonBlockUnsupported
	}
	d.maybeEmitStatusReport(bndl, bpv7.ReceivedBundle, reason)
}

func statusRequested(flags bpv7.BundleControlFlags, pos bpv7.StatusInformationPos) bool {
	switch pos {
	case bpv7.ReceivedBundle:
		return flags.Has(bpv7.ReceptionReportRequested)
	case bpv7.ForwardedBundle:
		return flags.Has(bpv7.ForwardReportRequested)
	case bpv7.DeliveredBundle:
		return flags.Has(bpv7.DeliveryReportRequested)
	case bpv7.DeletedBundle:
		return flags.Has(bpv7.DeleteReportRequested)
	default:
		return false
	}
}
