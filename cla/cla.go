// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla defines the convergence layer adapter boundary the dispatcher
// forwards bundles through, and a Manager that tracks which peers are
// reachable over which adapter.
package cla

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// Outcome is the result of a single Sender.ForwardBundle call, mirroring the
// four dispositions spec.md §4.5.3 assigns a CLA's forward_bundle:
//
//   - neither Token nor Congested set: immediate success.
//   - Token set: the CLA will acknowledge delivery later; Until bounds how
//     long the dispatcher should wait before treating the attempt as failed.
//   - Congested set, no Token: the CLA is backed up; Until is the estimated
//     time it'll accept data again.
type Outcome struct {
	Token     string
	Congested bool
	Until     time.Time
}

// Sender is the minimal convergence-layer surface the dispatcher's forward
// loop needs: a destination address and a way to push bytes at it.
type Sender interface {
	// Address identifies this sender among its Manager's registered CLAs
	// (e.g. "tcpclv4://192.0.2.1:4556").
	Address() string

	// ForwardBundle hands data (a complete, already-canonicalised bundle
	// encoding) to the convergence layer for transmission.
	ForwardBundle(ctx context.Context, data []byte) (Outcome, error)

	// Close releases any resources (connections, goroutines) this Sender holds.
	Close() error
}

// PeerEvent is the kind of change Manager reports on its event channel.
type PeerEvent int

const (
	PeerAppeared PeerEvent = iota
	PeerDisappeared
)

func (e PeerEvent) String() string {
	if e == PeerAppeared {
		return "peer appeared"
	}
	return "peer disappeared"
}

// PeerStatus is one notification emitted by Manager when a Sender is
// registered or unregistered.
type PeerStatus struct {
	Event   PeerEvent
	Address string
	Peer    bpv7.EID
}

// Manager is a registry of live Senders keyed by address, plus the
// address->EID associations the RIB's Forward actions resolve against. It is
// grounded on the teacher's pkg/cla.Manager, simplified to a supervised
// registry without the teacher's auto-restart/provider machinery -- this
// agent's CLAs (just tcpclv4) are expected to be started externally and
// registered once connected.
type Manager struct {
	mu    sync.RWMutex
	peers map[string]Sender
	eids  map[string]bpv7.EID // address -> remote node EID

	events chan PeerStatus
}

// NewManager builds an empty Manager. events is buffered to 64 entries, so
// Register/Unregister block only once that many events are left unread.
func NewManager() *Manager {
	return &Manager{
		peers:  make(map[string]Sender),
		eids:   make(map[string]bpv7.EID),
		events: make(chan PeerStatus, 64),
	}
}

// Events returns the channel on which peer appearance/disappearance is reported.
func (m *Manager) Events() <-chan PeerStatus { return m.events }

// Register adds sender, associated with the remote node EID peer, making it
// available to ForwardBundle by address.
func (m *Manager) Register(sender Sender, peer bpv7.EID) {
	m.mu.Lock()
	m.peers[sender.Address()] = sender
	m.eids[sender.Address()] = peer
	m.mu.Unlock()

	log.WithFields(log.Fields{"cla": sender.Address(), "peer": peer}).Info("cla: registered sender")
	m.events <- PeerStatus{Event: PeerAppeared, Address: sender.Address(), Peer: peer}
}

// Unregister removes and closes the sender at address, if present.
func (m *Manager) Unregister(address string) {
	m.mu.Lock()
	sender, ok := m.peers[address]
	peer := m.eids[address]
	delete(m.peers, address)
	delete(m.eids, address)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := sender.Close(); err != nil {
		log.WithFields(log.Fields{"cla": address, "error": err}).Warn("cla: error closing sender")
	}
	log.WithField("cla", address).Info("cla: unregistered sender")
	m.events <- PeerStatus{Event: PeerDisappeared, Address: address, Peer: peer}
}

// ErrUnknownCLA is returned by ForwardBundle for an address with no
// registered Sender.
var ErrUnknownCLA = fmt.Errorf("cla: no sender registered for this address")

// ForwardBundle resolves address to its registered Sender and forwards data
// through it.
func (m *Manager) ForwardBundle(ctx context.Context, address string, data []byte) (Outcome, error) {
	m.mu.RLock()
	sender, ok := m.peers[address]
	m.mu.RUnlock()
	if !ok {
		return Outcome{}, ErrUnknownCLA
	}
	return sender.ForwardBundle(ctx, data)
}

// PeerEID returns the remote node EID registered for address, if known.
func (m *Manager) PeerEID(address string) (bpv7.EID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eid, ok := m.eids[address]
	return eid, ok
}
