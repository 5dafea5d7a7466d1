// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SessionTerminationFlags are single-bit flags used in a SESS_TERM message.
type SessionTerminationFlags uint8

const (
	// TerminationReply marks this message as the acknowledging reply to a
	// peer's earlier SESS_TERM.
	TerminationReply SessionTerminationFlags = 0x01
)

// SessionTerminationCode is the one-octet reason code for a SESS_TERM.
type SessionTerminationCode uint8

const (
	TerminationUnknown            SessionTerminationCode = 0x00
	TerminationIdleTimeout        SessionTerminationCode = 0x01
	TerminationVersionMismatch    SessionTerminationCode = 0x02
	TerminationBusy               SessionTerminationCode = 0x03
	TerminationContactFailure     SessionTerminationCode = 0x04
	TerminationResourceExhaustion SessionTerminationCode = 0x05
)

func (stc SessionTerminationCode) IsValid() bool {
	switch stc {
	case TerminationUnknown, TerminationIdleTimeout, TerminationVersionMismatch,
		TerminationBusy, TerminationContactFailure, TerminationResourceExhaustion:
		return true
	default:
		return false
	}
}

// SESS_TERM is the message type code for session termination.
const SESS_TERM uint8 = 0x05

// SessionTerminationMessage closes a session, optionally as the reply to a
// peer-initiated close.
type SessionTerminationMessage struct {
	Flags      SessionTerminationFlags
	ReasonCode SessionTerminationCode
}

func NewSessionTerminationMessage(flags SessionTerminationFlags, reason SessionTerminationCode) *SessionTerminationMessage {
	return &SessionTerminationMessage{Flags: flags, ReasonCode: reason}
}

func (stm SessionTerminationMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{SESS_TERM, stm.Flags, stm.ReasonCode} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

func (stm *SessionTerminationMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != SESS_TERM {
		return fmt.Errorf("msgs: SESS_TERM type code mismatch: %#x != %#x", code, SESS_TERM)
	}
	for _, field := range []interface{}{&stm.Flags, &stm.ReasonCode} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	if !stm.ReasonCode.IsValid() {
		return fmt.Errorf("msgs: SESS_TERM reason code %#x is invalid", stm.ReasonCode)
	}
	return nil
}
