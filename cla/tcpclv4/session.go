// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcpclv4 implements the TCPCLv4 convergence layer adapter of
// spec.md §4.8 (RFC 9174): contact header exchange, SESS_INIT parameter
// negotiation, a keepalive ticker, and bundle transfer over XFER_SEGMENT/
// XFER_ACK/XFER_REFUSE, wrapped up as a cla.Sender a Dispatcher can forward
// through.
package tcpclv4

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/cla/tcpclv4/internal/msgs"
	"github.com/hardy-dtn/bpa-go/internal/metrics"
)

// defaultSegmentMru bounds the size of a single inbound XFER_SEGMENT this
// node is willing to buffer; defaultTransferMru bounds a whole bundle.
const (
	defaultSegmentMru  = 1 << 20  // 1 MiB
	defaultTransferMru = 1 << 30  // 1 GiB
	defaultKeepalive   = 30       // seconds, per RFC 9174 §4.2's suggested default
)

// BundleSink is the minimal surface a Session needs to hand a fully received
// bundle off to the rest of the agent; *dispatcher.Dispatcher satisfies this
// without either package importing the other.
type BundleSink interface {
	Ingress(raw []byte) error
}

// Session is one established TCPCLv4 connection, playing either the active
// (dialing) or passive (accepting) role. It implements cla.Sender.
type Session struct {
	conn net.Conn

	localNode bpv7.EID
	peerNode  bpv7.EID

	peerSegmentMru uint64
	keepalive      time.Duration

	// transferMru bounds the size of a single inbound transfer this session
	// buffers, the bound it advertised to the peer in its own SESS_INIT.
	transferMru uint64

	sink BundleSink

	// metrics is nil unless SetMetrics is called.
	metrics *metrics.Metrics

	writeMu sync.Mutex

	nextTransferID atomic.Uint64

	// ending is set once the peer has sent an unsolicited SESS_TERM; the
	// session keeps servicing in-flight transfers but refuses new ones,
	// RFC 9174 §4.4. A SESS_TERM sent by this side (terminate) does not set
	// it: the session closes at once.
	ending atomic.Bool

	pendingMu sync.Mutex
	pending   map[uint64]chan msgs.Message // XFER_ACK or XFER_REFUSE, keyed by transfer ID

	inboundMu sync.Mutex
	inbound   map[uint64]*bytes.Buffer // in-progress inbound transfers, keyed by transfer ID

	closed   chan struct{}
	closeErr error
	closeOne sync.Once
}

// Dial opens address as an active-role TCPCLv4 peer, running the contact
// header exchange and SESS_INIT negotiation before returning.
func Dial(ctx context.Context, address string, localNode bpv7.EID, sink BundleSink) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcpclv4: dial %s: %w", address, err)
	}
	return newSession(conn, localNode, sink, true)
}

// Accept wraps an already-accepted connection (e.g. from net.Listener) as a
// passive-role Session.
func Accept(conn net.Conn, localNode bpv7.EID, sink BundleSink) (*Session, error) {
	return newSession(conn, localNode, sink, false)
}

func newSession(conn net.Conn, localNode bpv7.EID, sink BundleSink, active bool) (*Session, error) {
	s := &Session{
		conn:      conn,
		localNode: localNode,
		sink:      sink,
		pending:   make(map[uint64]chan msgs.Message),
		inbound:   make(map[uint64]*bytes.Buffer),
		closed:    make(chan struct{}),
	}

	if err := s.handshake(active); err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.metrics.RecordSessionEstablished(active)

	go s.receiveLoop()
	go s.keepaliveLoop()

	return s, nil
}

// SetMetrics attaches m as this Session's instrumentation sink. Passing nil
// (the default) disables instrumentation.
func (s *Session) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// handshake runs the contact header exchange and SESS_INIT negotiation of
// RFC 9174 §4.2-4.3. The active peer speaks first at each step; this
// ordering (rather than concurrent read/write) mirrors the teacher's
// pkg/cla/tcpclv4 stage sequence without its message-switch/stage-handler
// machinery.
func (s *Session) handshake(active bool) error {
	ours := msgs.NewContactHeader(0)
	var theirs msgs.ContactHeader

	if active {
		if err := ours.Marshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: sending contact header: %w", err)
		}
		if err := theirs.Unmarshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: receiving contact header: %w", err)
		}
	} else {
		if err := theirs.Unmarshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: receiving contact header: %w", err)
		}
		if err := ours.Marshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: sending contact header: %w", err)
		}
	}

	sessOut := msgs.NewSessionInitMessage(defaultKeepalive, defaultSegmentMru, defaultTransferMru, s.localNode.String())
	var sessIn msgs.SessionInitMessage

	if active {
		if err := sessOut.Marshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: sending SESS_INIT: %w", err)
		}
		if err := readSessInit(s.conn, &sessIn); err != nil {
			return err
		}
	} else {
		if err := readSessInit(s.conn, &sessIn); err != nil {
			return err
		}
		if err := sessOut.Marshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: sending SESS_INIT: %w", err)
		}
	}

	// This agent defines no Session Extension Items of its own, so any
	// critical item the peer sent is by definition unrecognised; RFC 9174
	// §4.1 requires failing the session rather than silently ignoring it.
	if err := sessIn.Extensions.Reject(nil); err != nil {
		return fmt.Errorf("tcpclv4: peer SESS_INIT: %w", err)
	}

	peer, err := bpv7.ParseEID(sessIn.NodeID)
	if err != nil {
		return fmt.Errorf("tcpclv4: peer SESS_INIT node ID %q: %w", sessIn.NodeID, err)
	}
	s.peerNode = peer
	s.peerSegmentMru = sessIn.SegmentMru
	s.transferMru = sessOut.TransferMru

	keepalive := sessOut.KeepaliveInterval
	if sessIn.KeepaliveInterval < keepalive {
		keepalive = sessIn.KeepaliveInterval
	}
	s.keepalive = time.Duration(keepalive) * time.Second

	return nil
}

func readSessInit(r net.Conn, out *msgs.SessionInitMessage) error {
	msg, err := msgs.ReadMessage(r)
	if err != nil {
		return fmt.Errorf("tcpclv4: receiving SESS_INIT: %w", err)
	}
	sess, ok := msg.(*msgs.SessionInitMessage)
	if !ok {
		return fmt.Errorf("tcpclv4: expected SESS_INIT, got %T", msg)
	}
	*out = *sess
	return nil
}

// Address identifies this Session among a cla.Manager's registered senders.
func (s *Session) Address() string {
	return "tcpclv4://" + s.conn.RemoteAddr().String()
}

// PeerEID returns the node ID the peer announced during SESS_INIT.
func (s *Session) PeerEID() bpv7.EID { return s.peerNode }
