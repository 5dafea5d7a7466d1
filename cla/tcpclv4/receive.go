// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/cla/tcpclv4/internal/msgs"
)

// receiveLoop is the Session's sole reader goroutine: every inbound message
// is dispatched here, whether it's a reply to our own ForwardBundle or a
// peer-initiated bundle transfer. A read deadline of twice the negotiated
// keepalive interval enforces RFC 9174 §4.2's idle-timeout rule: silence
// for that long terminates the session, not just a missing KEEPALIVE reply.
func (s *Session) receiveLoop() {
	for {
		if s.keepalive > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(2 * s.keepalive))
		}

		msg, err := msgs.ReadMessage(s.conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.terminate(msgs.TerminationIdleTimeout,
					fmt.Errorf("tcpclv4: no message received within %s", 2*s.keepalive))
				return
			}
			s.fail(err)
			return
		}

		switch m := msg.(type) {
		case *msgs.KeepaliveMessage:
			// Nothing to do; the connection's liveness is what mattered.

		case *msgs.DataTransmissionMessage:
			s.handleSegment(m)

		case *msgs.DataAcknowledgementMessage:
			s.deliverPending(m.TransferID, m)

		case *msgs.TransferRefusalMessage:
			s.deliverPending(m.TransferID, m)

		case *msgs.SessionTerminationMessage:
			if s.handleSessTerm(m) {
				s.fail(errors.New("tcpclv4: session terminated"))
				return
			}

		case *msgs.MessageRejectionMessage:
			log.WithField("cla", s.Address()).WithField("reason", m.ReasonCode).
				Warn("tcpclv4: peer rejected a message we sent")

		default:
			log.WithField("cla", s.Address()).WithField("type", m).
				Warn("tcpclv4: unexpected message on an established session")
		}

		if s.isEnding() && s.drained() {
			s.fail(errors.New("tcpclv4: session ending: every in-flight transfer resolved"))
			return
		}
	}
}

// handleSegment buffers an inbound XFER_SEGMENT and, once the End flag
// arrives, hands the complete bundle to the sink and acknowledges it.
func (s *Session) handleSegment(m *msgs.DataTransmissionMessage) {
	if err := m.Extensions.Reject(nil); err != nil {
		log.WithField("cla", s.Address()).WithError(err).Warn("tcpclv4: rejecting XFER_SEGMENT")
		s.rejectMessage(msgs.XFER_SEGMENT)
		s.fail(err)
		return
	}

	s.inboundMu.Lock()
	buf, ok := s.inbound[m.TransferID]
	if !ok {
		if s.isEnding() {
			s.inboundMu.Unlock()
			s.refuseTransfer(m.TransferID, msgs.RefusalSessionTerminating)
			return
		}
		buf = new(bytes.Buffer)
		s.inbound[m.TransferID] = buf
	}

	if uint64(buf.Len())+uint64(len(m.Data)) > s.transferMru {
		delete(s.inbound, m.TransferID)
		s.inboundMu.Unlock()
		log.WithFields(log.Fields{"cla": s.Address(), "transfer": m.TransferID}).
			Warn("tcpclv4: inbound transfer exceeds transfer_mru, rejecting")
		s.rejectMessage(msgs.XFER_SEGMENT)
		return
	}
	buf.Write(m.Data)
	s.inboundMu.Unlock()
	s.metrics.AddBytesReceived(len(m.Data))

	ack := msgs.NewDataAcknowledgementMessage(m.Flags, m.TransferID, uint64(buf.Len()))
	s.writeMu.Lock()
	ackErr := ack.Marshal(s.conn)
	s.writeMu.Unlock()
	if ackErr != nil {
		log.WithField("cla", s.Address()).WithError(ackErr).Warn("tcpclv4: failed to send XFER_ACK")
	}

	if m.Flags&msgs.SegmentEnd == 0 {
		return
	}

	s.inboundMu.Lock()
	delete(s.inbound, m.TransferID)
	s.inboundMu.Unlock()

	data := buf.Bytes()
	if err := s.sink.Ingress(data); err != nil {
		log.WithField("cla", s.Address()).WithError(err).Debug("tcpclv4: ingress rejected received bundle")
	}
}

// rejectMessage tells the peer its last message of the given type code was
// rejected as unsupported, e.g. an oversized transfer or an unrecognised
// critical extension item.
func (s *Session) rejectMessage(rejected uint8) {
	reject := msgs.NewMessageRejectionMessage(msgs.RejectionUnsupported, rejected)
	s.writeMu.Lock()
	err := reject.Marshal(s.conn)
	s.writeMu.Unlock()
	if err != nil {
		log.WithField("cla", s.Address()).WithError(err).Warn("tcpclv4: failed to send MSG_REJECT")
	}
}

// refuseTransfer tells the peer transfer tid was refused for reason,
// without ever buffering its data.
func (s *Session) refuseTransfer(tid uint64, reason msgs.TransferRefusalCode) {
	refusal := msgs.NewTransferRefusalMessage(reason, tid)
	s.writeMu.Lock()
	err := refusal.Marshal(s.conn)
	s.writeMu.Unlock()
	if err != nil {
		log.WithField("cla", s.Address()).WithError(err).Warn("tcpclv4: failed to send XFER_REFUSE")
	}
}

func (s *Session) deliverPending(tid uint64, msg msgs.Message) {
	s.pendingMu.Lock()
	ch, ok := s.pending[tid]
	s.pendingMu.Unlock()
	if !ok {
		log.WithField("cla", s.Address()).WithField("transfer", tid).
			Debug("tcpclv4: reply for unknown or already-resolved transfer")
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// handleSessTerm processes an inbound SESS_TERM. It returns true if the
// session should close immediately: the peer was acknowledging a SESS_TERM
// we sent, or no transfer is in flight. Otherwise it returns false and the
// session stays in the Ending state: both sides keep servicing in-flight
// transfers until they resolve, and the caller is responsible for closing
// once drained() reports true.
func (s *Session) handleSessTerm(m *msgs.SessionTerminationMessage) bool {
	if m.Flags&msgs.TerminationReply != 0 {
		return true
	}

	s.ending.Store(true)
	reply := msgs.NewSessionTerminationMessage(msgs.TerminationReply, m.ReasonCode)
	s.writeMu.Lock()
	_ = reply.Marshal(s.conn)
	s.writeMu.Unlock()

	return s.drained()
}

// isEnding reports whether this session is in the Ending state: new
// transfers must be refused, but in-flight ones still get serviced.
func (s *Session) isEnding() bool { return s.ending.Load() }

// drained reports whether every in-flight transfer, inbound and outbound,
// has resolved, so a session in the Ending state may now close.
func (s *Session) drained() bool {
	s.pendingMu.Lock()
	outstanding := len(s.pending)
	s.pendingMu.Unlock()

	s.inboundMu.Lock()
	outstanding += len(s.inbound)
	s.inboundMu.Unlock()

	return outstanding == 0
}

// terminate sends a SESS_TERM with the given reason and ends the session,
// recording err as the reason it ended.
func (s *Session) terminate(reason msgs.SessionTerminationCode, err error) {
	term := msgs.NewSessionTerminationMessage(0, reason)
	s.writeMu.Lock()
	_ = term.Marshal(s.conn)
	s.writeMu.Unlock()
	s.metrics.RecordSessionTerminated(fmt.Sprintf("%d", reason))
	s.fail(err)
}

// keepaliveLoop sends a KEEPALIVE every negotiated interval until the
// session closes. A non-positive negotiated interval (either peer asked for
// none) disables the ticker, per RFC 9174 §4.3.2.
func (s *Session) keepaliveLoop() {
	if s.keepalive <= 0 {
		return
	}
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := msgs.NewKeepaliveMessage().Marshal(s.conn)
			s.writeMu.Unlock()
			if err != nil {
				s.fail(err)
				return
			}
		}
	}
}

// fail records err as the reason this session ended and closes it, unless
// it was already closing.
func (s *Session) fail(err error) {
	s.closeOne.Do(func() {
		s.closeErr = err
		if !errors.Is(err, io.EOF) {
			log.WithField("cla", s.Address()).WithError(err).Info("tcpclv4: session ending")
		}
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Err returns the reason this session ended, if it has.
func (s *Session) Err() error {
	select {
	case <-s.closed:
		return s.closeErr
	default:
		return nil
	}
}

// Close implements cla.Sender: it sends SESS_TERM and tears the connection
// down.
func (s *Session) Close() error {
	s.terminate(msgs.TerminationUnknown, errors.New("tcpclv4: closed locally"))
	return nil
}
