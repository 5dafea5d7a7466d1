// SPDX-License-Identifier: GPL-3.0-or-later

// Package localsvc collects dispatcher.LocalService implementations this
// agent ships out of the box, grounded on the teacher's pkg/agent
// ApplicationAgent implementations.
package localsvc

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// Sender is the minimal surface PingService needs to emit its reply
// bundle; *dispatcher.Dispatcher satisfies it via Send.
type Sender interface {
	Send(bndl bpv7.Bundle) error
}

// defaultHopLimit is used when an incoming bundle carries no hop-count
// block of its own, matching the teacher's PingAgent.ackBundle default.
const defaultHopLimit = 64

// PingService replies to every delivered bundle with a four-byte "pong"
// payload bundle addressed back to the original bundle's report-to EID,
// grounded on the teacher's pkg/agent.PingAgent, generalised from that
// agent's own channel-based message loop to the synchronous
// dispatcher.LocalService.Deliver call this agent's Dispatcher makes.
type PingService struct {
	endpoint bpv7.EID
	sender   Sender
}

// NewPingService builds a PingService that identifies itself as endpoint
// and sends its replies through sender.
func NewPingService(endpoint bpv7.EID, sender Sender) *PingService {
	return &PingService{endpoint: endpoint, sender: sender}
}

// Deliver implements dispatcher.LocalService: it replies to bndl with a
// "pong" payload bundle, carrying forward the incoming bundle's hop-count
// budget (if any) so a ping storm still terminates on the same hop limit
// RFC 9171 §4.4.3 would apply to any other forwarded bundle.
func (p *PingService) Deliver(bndl *bpv7.Bundle) error {
	hopLimit := uint64(defaultHopLimit)
	if limit, _, ok, err := bndl.HopCount(); err == nil && ok {
		hopLimit = limit
	}

	reply, err := bpv7.NewBuilder().
		Source(p.endpoint).
		Destination(bndl.Primary.ReportTo).
		CreationTimestampNow().
		Lifetime(time.Duration(bndl.Primary.Lifetime) * time.Millisecond).
		HopCountBlock(hopLimit).
		PayloadBlock([]byte("pong")).
		Build()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"service": p.endpoint, "destination": reply.Primary.Destination}).
		Debug("localsvc: sending pong reply")
	return p.sender.Send(reply)
}

// OnStatusNotify implements dispatcher.LocalService; PingService never
// originates a bundle that could earn a status report referencing it, so
// this is purely informational logging.
func (p *PingService) OnStatusNotify(id bpv7.BundleID, from bpv7.EID, pos bpv7.StatusInformationPos, reason bpv7.ReasonCode, t bpv7.DtnTime, hasTime bool) {
	log.WithFields(log.Fields{"service": p.endpoint, "bundle": id, "from": from, "status": pos}).
		Debug("localsvc: ping service received an unexpected status notification")
}
