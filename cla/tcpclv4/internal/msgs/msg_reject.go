// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageRejectionReason is the one-octet reason code for a MSG_REJECT.
type MessageRejectionReason uint8

const (
	RejectionTypeUnknown MessageRejectionReason = 0x01
	RejectionUnsupported MessageRejectionReason = 0x02
	RejectionUnexpected  MessageRejectionReason = 0x03
)

func (mrr MessageRejectionReason) IsValid() bool {
	switch mrr {
	case RejectionTypeUnknown, RejectionUnsupported, RejectionUnexpected:
		return true
	default:
		return false
	}
}

// MSG_REJECT is the message type code for rejecting an unrecognised or
// unexpected message.
const MSG_REJECT uint8 = 0x06

// MessageRejectionMessage tells the peer that RejectedHeader (the type code
// of the offending message) was rejected for ReasonCode.
type MessageRejectionMessage struct {
	ReasonCode     MessageRejectionReason
	RejectedHeader uint8
}

func NewMessageRejectionMessage(reason MessageRejectionReason, rejected uint8) *MessageRejectionMessage {
	return &MessageRejectionMessage{ReasonCode: reason, RejectedHeader: rejected}
}

func (mrm MessageRejectionMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{MSG_REJECT, mrm.ReasonCode, mrm.RejectedHeader} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

func (mrm *MessageRejectionMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != MSG_REJECT {
		return fmt.Errorf("msgs: MSG_REJECT type code mismatch: %#x != %#x", code, MSG_REJECT)
	}
	for _, field := range []interface{}{&mrm.ReasonCode, &mrm.RejectedHeader} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	if !mrm.ReasonCode.IsValid() {
		return fmt.Errorf("msgs: MSG_REJECT reason code %#x is invalid", mrm.ReasonCode)
	}
	return nil
}
