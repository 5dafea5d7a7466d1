// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/cla"
)

// Listener accepts inbound TCPCLv4 connections and registers each
// successfully negotiated Session with a cla.Manager, grounded on the
// teacher's pkg/cla/tcpclv4.TCPListener but without its provider-restart
// bookkeeping -- this agent expects its listener to be started once and
// stopped once.
type Listener struct {
	addr      string
	localNode bpv7.EID
	manager   *cla.Manager
	sink      BundleSink

	ln net.Listener

	stop chan struct{}
	done chan struct{}
}

// NewListener prepares a Listener bound to addr (host:port). Call Start to
// begin accepting.
func NewListener(addr string, localNode bpv7.EID, manager *cla.Manager, sink BundleSink) *Listener {
	return &Listener{
		addr:      addr,
		localNode: localNode,
		manager:   manager,
		sink:      sink,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start binds the listening socket and accepts connections until Close is
// called.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln

	go l.acceptLoop()
	return nil
}

func (l *Listener) acceptLoop() {
	defer close(l.done)

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
				log.WithError(err).WithField("cla", l.addr).Warn("tcpclv4: accept failed")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	session, err := Accept(conn, l.localNode, l.sink)
	if err != nil {
		log.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("tcpclv4: incoming handshake failed")
		_ = conn.Close()
		return
	}
	l.manager.Register(session, session.PeerEID())
}

// Close stops accepting new connections. Already-established sessions are
// left running; unregister them through the cla.Manager individually.
func (l *Listener) Close() error {
	close(l.stop)
	err := l.ln.Close()
	<-l.done
	return err
}
