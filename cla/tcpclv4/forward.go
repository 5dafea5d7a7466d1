// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"context"
	"fmt"

	"github.com/hardy-dtn/bpa-go/cla"
	"github.com/hardy-dtn/bpa-go/cla/tcpclv4/internal/msgs"
)

// ForwardBundle implements cla.Sender: it segments data according to the
// peer's advertised SegmentMru, sends each XFER_SEGMENT, and waits for the
// matching XFER_ACK/XFER_REFUSE. A full acknowledged transfer is reported as
// an immediate success (§4.5.3's first disposition). A RefusalNoResources
// XFER_REFUSE terminates the session outright (§4.8's NoResources ->
// ResourceExhaustion rule) rather than being retried on a session the peer
// has already said it cannot service.
func (s *Session) ForwardBundle(ctx context.Context, data []byte) (cla.Outcome, error) {
	if s.isEnding() {
		return cla.Outcome{}, fmt.Errorf("tcpclv4: session to %s is terminating, refusing new transfer", s.Address())
	}

	tid := s.nextTransferID.Add(1) - 1

	ackCh := make(chan msgs.Message, 1)
	s.pendingMu.Lock()
	s.pending[tid] = ackCh
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, tid)
		s.pendingMu.Unlock()
	}()

	segmentSize := s.peerSegmentMru
	if segmentSize == 0 || segmentSize > defaultSegmentMru {
		segmentSize = defaultSegmentMru
	}

	if err := s.sendSegments(tid, data, segmentSize); err != nil {
		return cla.Outcome{}, err
	}

	select {
	case <-ctx.Done():
		return cla.Outcome{}, ctx.Err()
	case <-s.closed:
		return cla.Outcome{}, fmt.Errorf("tcpclv4: session to %s closed mid-transfer", s.Address())
	case msg := <-ackCh:
		return s.resolveOutcome(msg, uint64(len(data)))
	}
}

func (s *Session) sendSegments(tid uint64, data []byte, segmentSize uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if len(data) == 0 {
		m := msgs.NewDataTransmissionMessage(msgs.SegmentStart|msgs.SegmentEnd, tid, nil)
		return m.Marshal(s.conn)
	}

	for offset := 0; offset < len(data); {
		end := offset + int(segmentSize)
		if end > len(data) {
			end = len(data)
		}

		var flags msgs.SegmentFlags
		if offset == 0 {
			flags |= msgs.SegmentStart
		}
		if end == len(data) {
			flags |= msgs.SegmentEnd
		}

		m := msgs.NewDataTransmissionMessage(flags, tid, data[offset:end])
		if err := m.Marshal(s.conn); err != nil {
			return fmt.Errorf("tcpclv4: sending XFER_SEGMENT: %w", err)
		}
		s.metrics.AddBytesSent(end - offset)
		offset = end
	}
	return nil
}

func (s *Session) resolveOutcome(msg msgs.Message, sent uint64) (cla.Outcome, error) {
	switch m := msg.(type) {
	case *msgs.DataAcknowledgementMessage:
		if m.AckLen < sent {
			return cla.Outcome{}, fmt.Errorf("tcpclv4: partial XFER_ACK, %d of %d octets", m.AckLen, sent)
		}
		return cla.Outcome{}, nil

	case *msgs.TransferRefusalMessage:
		if m.ReasonCode == msgs.RefusalNoResources {
			err := fmt.Errorf("tcpclv4: peer refused transfer for lack of resources")
			s.terminate(msgs.TerminationResourceExhaustion, err)
			return cla.Outcome{}, err
		}
		return cla.Outcome{}, fmt.Errorf("tcpclv4: peer refused transfer: %v", m.ReasonCode)

	default:
		return cla.Outcome{}, fmt.Errorf("tcpclv4: unexpected reply message %T", msg)
	}
}
