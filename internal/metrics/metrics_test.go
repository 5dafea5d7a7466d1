// SPDX-License-Identifier: GPL-3.0-or-later

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordDispatched("forward")
	m.RecordDropped("6")
	m.RecordDelivered()
	m.RecordStatusReport("1")
	m.SetWaiting(3)
	m.RecordSessionEstablished(true)
	m.RecordSessionTerminated("0")
	m.AddBytesSent(10)
	m.AddBytesReceived(10)
}

func TestRecordDispatchedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	before := testutil.ToFloat64(m.Bundles.Dispatched.WithLabelValues("forward"))
	m.RecordDispatched("forward")
	m.RecordDispatched("forward")

	got := testutil.ToFloat64(m.Bundles.Dispatched.WithLabelValues("forward"))
	if got != before+2 {
		t.Fatalf("expected %v dispatched events, got %v", before+2, got)
	}
}
