// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs implements the TCPCLv4 (RFC 9174) wire messages: the contact
// header exchanged immediately after connecting, and the session protocol
// messages (SESS_INIT, SESS_TERM, XFER_SEGMENT, XFER_ACK, XFER_REFUSE,
// KEEPALIVE, MSG_REJECT) exchanged afterwards.
package msgs

import (
	"bytes"
	"fmt"
	"io"
)

// Message is satisfied by every TCPCLv4 message, including the ContactHeader,
// which is not really a "message" in RFC 9174's sense but shares the same
// framing needs.
type Message interface {
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// registry maps a message type code to a constructor for a fresh zero value
// of its type, used by NewMessage to dispatch on the type code read off the
// wire.
var registry = map[uint8]func() Message{
	SESS_INIT:    func() Message { return &SessionInitMessage{} },
	SESS_TERM:    func() Message { return &SessionTerminationMessage{} },
	XFER_SEGMENT: func() Message { return &DataTransmissionMessage{} },
	XFER_ACK:     func() Message { return &DataAcknowledgementMessage{} },
	XFER_REFUSE:  func() Message { return &TransferRefusalMessage{} },
	KEEPALIVE:    func() Message { return &KeepaliveMessage{} },
	MSG_REJECT:   func() Message { return &MessageRejectionMessage{} },

	// The ContactHeader isn't a session message, but registering it under
	// its own magic byte lets the same type-code dispatch classify it
	// before the session starts.
	contactMagicByte: func() Message { return &ContactHeader{} },
}

// NewMessage allocates a zero-valued Message for the given type code.
func NewMessage(typeCode uint8) (Message, error) {
	ctor, ok := registry[typeCode]
	if !ok {
		return nil, fmt.Errorf("msgs: no message registered for type code %#x", typeCode)
	}
	return ctor(), nil
}

// ReadMessage peeks the next message's type code off r and unmarshals the
// whole message, type code included.
func ReadMessage(r io.Reader) (Message, error) {
	head := make([]byte, 1)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}

	msg, err := NewMessage(head[0])
	if err != nil {
		return nil, err
	}

	if err := msg.Unmarshal(io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return nil, err
	}
	return msg, nil
}
