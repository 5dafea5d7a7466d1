// SPDX-License-Identifier: GPL-3.0-or-later

// Package serviceapi exposes a REST and WebSocket surface local
// applications use to register an endpoint, fetch or receive delivered
// bundles, and send new ones, grounded on the teacher's agent.RestAgent
// and agent.WebsocketAgent. Where the teacher gives each HTTP client its
// own ApplicationAgent instance wired into core.Core at start-up, this
// package runs a single dispatcher.LocalService shared by every client,
// fanning delivered bundles out by matching destination EID -- the RIB
// entry per client (rather than the teacher's static per-agent endpoint
// list) is what makes that routing dynamic.
package serviceapi

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rs/xid"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/dispatcher"
	"github.com/hardy-dtn/bpa-go/eidpattern"
	"github.com/hardy-dtn/bpa-go/rib"
)

// serviceName is the RIB service identifier and dispatcher.LocalService
// registration name this package's Registry uses.
const serviceName = "serviceapi"

// Registry tracks every client currently registered through the REST or
// WebSocket surface and implements dispatcher.LocalService to receive
// bundles addressed to any of them.
type Registry struct {
	dispatcher *dispatcher.Dispatcher
	rib        *rib.Table

	mu      sync.Mutex
	clients map[string]bpv7.EID // client id -> registered endpoint

	mailboxMu sync.Mutex
	mailbox   map[string][]bpv7.Bundle // client id -> queued, not-yet-fetched bundles

	live sync.Map // client id -> liveClient, populated by the WebSocket surface
}

// liveClient is the push target for a client currently holding an open
// WebSocket connection; Deliver prefers pushing here over queuing in the
// mailbox.
type liveClient interface {
	pushBundle(bpv7.Bundle) error
}

// NewRegistry builds a Registry and registers it with d under serviceName.
func NewRegistry(d *dispatcher.Dispatcher, table *rib.Table) *Registry {
	r := &Registry{
		dispatcher: d,
		rib:        table,
		clients:    make(map[string]bpv7.EID),
		mailbox:    make(map[string][]bpv7.Bundle),
	}
	d.RegisterService(serviceName, r)
	return r
}

// Register adds a new client for endpoint, installs the RIB entry that
// routes bundles addressed to it to this Registry, and returns the client
// id new callers must present on every subsequent request.
func (r *Registry) Register(endpoint bpv7.EID) (string, error) {
	pattern, err := eidpattern.Parse(endpoint.String())
	if err != nil {
		return "", fmt.Errorf("serviceapi: endpoint %q is not a valid pattern: %w", endpoint, err)
	}

	id := xid.New().String()

	r.mu.Lock()
	r.clients[id] = endpoint
	r.mu.Unlock()

	r.rib.AddEntry(r.ribEntry(id, pattern))

	log.WithFields(log.Fields{"client": id, "endpoint": endpoint}).Info("serviceapi: client registered")
	return id, nil
}

// Unregister removes a client and its RIB entry and drops any bundles
// still sitting in its mailbox.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	endpoint, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	pattern, err := eidpattern.Parse(endpoint.String())
	if err == nil {
		r.rib.RemoveEntry(r.ribEntry(id, pattern))
	}

	r.mailboxMu.Lock()
	delete(r.mailbox, id)
	r.mailboxMu.Unlock()

	r.live.Delete(id)
	log.WithField("client", id).Info("serviceapi: client unregistered")
}

func (r *Registry) ribEntry(id string, pattern eidpattern.Pattern) rib.Entry {
	return rib.Entry{
		Pattern:  pattern,
		Action:   rib.Action{Kind: rib.ActionLocal, Service: serviceName},
		Source:   "serviceapi:" + id,
		Priority: 0,
	}
}

// endpointOf returns the endpoint id registered for id, if any.
func (r *Registry) endpointOf(id string) (bpv7.EID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eid, ok := r.clients[id]
	return eid, ok
}

// Fetch drains and returns every bundle queued in id's mailbox.
func (r *Registry) Fetch(id string) []bpv7.Bundle {
	r.mailboxMu.Lock()
	defer r.mailboxMu.Unlock()
	bundles := r.mailbox[id]
	delete(r.mailbox, id)
	return bundles
}

// Send hands bndl to the dispatcher for this agent to originate, on
// behalf of the client identified by id. The caller is responsible for
// checking that id's registered endpoint is the bundle's source or
// report-to, the same check the teacher's handleBuild makes.
func (r *Registry) Send(id string, bndl bpv7.Bundle) error {
	if _, ok := r.endpointOf(id); !ok {
		return fmt.Errorf("serviceapi: unknown client id %q", id)
	}
	return r.dispatcher.Send(bndl)
}

// setLive registers (or, with nil, clears) id's push target for Deliver.
func (r *Registry) setLive(id string, c liveClient) {
	if c == nil {
		r.live.Delete(id)
		return
	}
	r.live.Store(id, c)
}

// Deliver implements dispatcher.LocalService: every registered client
// whose endpoint equals bndl's destination receives a copy, pushed live
// over an open WebSocket if one exists, queued in its mailbox otherwise.
func (r *Registry) Deliver(bndl *bpv7.Bundle) error {
	r.mu.Lock()
	var matches []string
	for id, eid := range r.clients {
		if eid.Equal(bndl.Primary.Destination) {
			matches = append(matches, id)
		}
	}
	r.mu.Unlock()

	for _, id := range matches {
		r.deliverTo(id, *bndl)
	}
	return nil
}

func (r *Registry) deliverTo(id string, bndl bpv7.Bundle) {
	if v, ok := r.live.Load(id); ok {
		if err := v.(liveClient).pushBundle(bndl); err == nil {
			return
		}
		// Push failed (client gone); fall through to queuing so the
		// bundle isn't lost.
	}

	r.mailboxMu.Lock()
	r.mailbox[id] = append(r.mailbox[id], bndl)
	r.mailboxMu.Unlock()
}

// OnStatusNotify implements dispatcher.LocalService. Status notifications
// referencing a serviceapi client's own originated bundle are logged; this
// surface has no wire format for them yet, unlike delivered bundles.
func (r *Registry) OnStatusNotify(id bpv7.BundleID, from bpv7.EID, pos bpv7.StatusInformationPos, reason bpv7.ReasonCode, t bpv7.DtnTime, hasTime bool) {
	log.WithFields(log.Fields{"bundle": id, "from": from, "status": pos, "reason": reason}).
		Debug("serviceapi: status notification for a client-originated bundle")
}
