// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exposes this agent's Prometheus instrumentation points,
// grounded on the pack's metrics.go idiom (a struct of pre-registered
// collectors, nil-receiver methods that are a no-op when metrics are
// disabled, every name under one prefix). Bundles is wired into
// dispatcher.Dispatcher, Sessions into cla/tcpclv4.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Bundles tracks the dispatch pipeline's per-bundle dispositions, spec §4.5.
type Bundles struct {
	// Dispatched counts every bundle handed to dispatch, by the RIB result
	// kind it resolved to: admin_endpoint, deliver, forward, wait.
	Dispatched *prometheus.CounterVec

	// Dropped counts dropped bundles by bpv7.ReasonCode, formatted as a
	// decimal string label (there is no stable name for every code).
	Dropped *prometheus.CounterVec

	// Delivered counts bundles handed to a local service.
	Delivered prometheus.Counter

	// StatusReportsEmitted counts administrative-record status reports this
	// node generated, by status_information_code label.
	StatusReportsEmitted *prometheus.CounterVec

	// WaitingBundles holds the count of Waiting-state bundles last passed to
	// SetWaiting. No package in this module calls SetWaiting, so the gauge
	// stays at 0 unless a caller sets it.
	WaitingBundles prometheus.Gauge
}

// Sessions tracks TCPCLv4 convergence layer session lifecycle and transfer
// volume, RFC 9174 §4.
type Sessions struct {
	// Established counts sessions that completed contact header/SESS_INIT
	// negotiation, by role: active or passive.
	Established *prometheus.CounterVec

	// Terminated counts sessions that ended, by msgs.SessionTerminationCode
	// formatted as a decimal string label.
	Terminated *prometheus.CounterVec

	// BytesSent and BytesReceived count XFER_SEGMENT payload octets.
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
}

// Metrics is this agent's full set of Prometheus collectors. A nil
// *Metrics (or a nil *Bundles/*Sessions within it) makes every Record*
// method on it a no-op, so instrumentation call sites never need a
// separate "metrics enabled" check.
type Metrics struct {
	Bundles  *Bundles
	Sessions *Sessions
}

var (
	once     sync.Once
	instance *Metrics
)

// New builds and registers this agent's collectors against registerer (nil
// uses prometheus.DefaultRegisterer). Idempotent: repeated calls return the
// same instance rather than re-registering (and panicking on) collectors
// already known to the registerer.
func New(registerer prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		bundles := &Bundles{
			Dispatched: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "bpa_bundles_dispatched_total", Help: "Bundles entering the dispatch loop, by RIB result kind."},
				[]string{"result"},
			),
			Dropped: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "bpa_bundles_dropped_total", Help: "Bundles dropped, by reason code."},
				[]string{"reason"},
			),
			Delivered: prometheus.NewCounter(
				prometheus.CounterOpts{Name: "bpa_bundles_delivered_total", Help: "Bundles delivered to a local service."},
			),
			StatusReportsEmitted: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "bpa_status_reports_emitted_total", Help: "Administrative record status reports emitted, by status code."},
				[]string{"status"},
			),
			WaitingBundles: prometheus.NewGauge(
				prometheus.GaugeOpts{Name: "bpa_bundles_waiting", Help: "Bundles currently parked in the Waiting state."},
			),
		}

		sessions := &Sessions{
			Established: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "bpa_tcpclv4_sessions_established_total", Help: "TCPCLv4 sessions established, by role."},
				[]string{"role"},
			),
			Terminated: prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "bpa_tcpclv4_sessions_terminated_total", Help: "TCPCLv4 sessions terminated, by termination reason code."},
				[]string{"reason"},
			),
			BytesSent: prometheus.NewCounter(
				prometheus.CounterOpts{Name: "bpa_tcpclv4_bytes_sent_total", Help: "XFER_SEGMENT payload octets sent."},
			),
			BytesReceived: prometheus.NewCounter(
				prometheus.CounterOpts{Name: "bpa_tcpclv4_bytes_received_total", Help: "XFER_SEGMENT payload octets received."},
			),
		}

		registerer.MustRegister(
			bundles.Dispatched, bundles.Dropped, bundles.Delivered,
			bundles.StatusReportsEmitted, bundles.WaitingBundles,
			sessions.Established, sessions.Terminated,
			sessions.BytesSent, sessions.BytesReceived,
		)

		instance = &Metrics{Bundles: bundles, Sessions: sessions}
	})
	return instance
}

func (b *Bundles) recordDispatched(result string) {
	if b == nil {
		return
	}
	b.Dispatched.WithLabelValues(result).Inc()
}

func (b *Bundles) recordDropped(reason string) {
	if b == nil {
		return
	}
	b.Dropped.WithLabelValues(reason).Inc()
}

func (b *Bundles) recordDelivered() {
	if b == nil {
		return
	}
	b.Delivered.Inc()
}

func (b *Bundles) recordStatusReport(status string) {
	if b == nil {
		return
	}
	b.StatusReportsEmitted.WithLabelValues(status).Inc()
}

func (b *Bundles) setWaiting(n float64) {
	if b == nil {
		return
	}
	b.WaitingBundles.Set(n)
}

func (s *Sessions) recordEstablished(role string) {
	if s == nil {
		return
	}
	s.Established.WithLabelValues(role).Inc()
}

func (s *Sessions) recordTerminated(reason string) {
	if s == nil {
		return
	}
	s.Terminated.WithLabelValues(reason).Inc()
}

func (s *Sessions) addBytesSent(n int) {
	if s == nil {
		return
	}
	s.BytesSent.Add(float64(n))
}

func (s *Sessions) addBytesReceived(n int) {
	if s == nil {
		return
	}
	s.BytesReceived.Add(float64(n))
}

// RecordDispatched records a bundle reaching dispatch with the given RIB
// result kind label. A nil *Metrics, or a nil Bundles field, makes this a
// no-op.
func (m *Metrics) RecordDispatched(result string) {
	if m == nil {
		return
	}
	m.Bundles.recordDispatched(result)
}

// RecordDropped records a dropped bundle with the given reason code label.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.Bundles.recordDropped(reason)
}

// RecordDelivered records a bundle delivered to a local service.
func (m *Metrics) RecordDelivered() {
	if m == nil {
		return
	}
	m.Bundles.recordDelivered()
}

// RecordStatusReport records an emitted administrative record status report.
func (m *Metrics) RecordStatusReport(status string) {
	if m == nil {
		return
	}
	m.Bundles.recordStatusReport(status)
}

// SetWaiting sets the current count of Waiting-state bundles.
func (m *Metrics) SetWaiting(n int) {
	if m == nil {
		return
	}
	m.Bundles.setWaiting(float64(n))
}

// RecordSessionEstablished records a newly established TCPCLv4 session.
func (m *Metrics) RecordSessionEstablished(active bool) {
	if m == nil {
		return
	}
	role := "passive"
	if active {
		role = "active"
	}
	m.Sessions.recordEstablished(role)
}

// RecordSessionTerminated records a TCPCLv4 session ending with reason.
func (m *Metrics) RecordSessionTerminated(reason string) {
	if m == nil {
		return
	}
	m.Sessions.recordTerminated(reason)
}

// AddBytesSent records n payload octets sent over a TCPCLv4 session.
func (m *Metrics) AddBytesSent(n int) {
	if m == nil {
		return
	}
	m.Sessions.addBytesSent(n)
}

// AddBytesReceived records n payload octets received over a TCPCLv4 session.
func (m *Metrics) AddBytesReceived(n int) {
	if m == nil {
		return
	}
	m.Sessions.addBytesReceived(n)
}
