// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SESS_INIT is the message type code for session parameter negotiation.
const SESS_INIT uint8 = 0x07

// SessionInitMessage negotiates keepalive interval and MRU sizes and
// announces the sender's node ID, plus any Session Extension Items the
// sender attached.
type SessionInitMessage struct {
	KeepaliveInterval uint16
	SegmentMru        uint64
	TransferMru       uint64
	NodeID            string
	Extensions        ExtensionList
}

func NewSessionInitMessage(keepalive uint16, segmentMru, transferMru uint64, nodeID string) *SessionInitMessage {
	return &SessionInitMessage{
		KeepaliveInterval: keepalive,
		SegmentMru:        segmentMru,
		TransferMru:       transferMru,
		NodeID:            nodeID,
	}
}

func (si SessionInitMessage) Marshal(w io.Writer) error {
	fields := []interface{}{
		SESS_INIT,
		si.KeepaliveInterval,
		si.SegmentMru,
		si.TransferMru,
		uint16(len(si.NodeID)),
	}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	if n, err := io.WriteString(w, si.NodeID); err != nil {
		return err
	} else if n != len(si.NodeID) {
		return fmt.Errorf("msgs: SESS_INIT node ID length %d, wrote %d", len(si.NodeID), n)
	}
	return marshalExtensions(w, si.Extensions)
}

func (si *SessionInitMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != SESS_INIT {
		return fmt.Errorf("msgs: SESS_INIT type code mismatch: %#x != %#x", code, SESS_INIT)
	}

	var nodeIDLen uint16
	for _, field := range []interface{}{&si.KeepaliveInterval, &si.SegmentMru, &si.TransferMru, &nodeIDLen} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	nodeID := make([]byte, nodeIDLen)
	if _, err := io.ReadFull(r, nodeID); err != nil {
		return err
	}
	si.NodeID = string(nodeID)

	extensions, err := unmarshalExtensions(r)
	if err != nil {
		return fmt.Errorf("msgs: SESS_INIT: %w", err)
	}
	si.Extensions = extensions
	return nil
}
