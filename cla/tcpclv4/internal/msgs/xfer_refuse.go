// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TransferRefusalCode is the one-octet reason code for a XFER_REFUSE.
type TransferRefusalCode uint8

const (
	RefusalUnknown            TransferRefusalCode = 0x00
	RefusalCompleted          TransferRefusalCode = 0x01
	RefusalNoResources        TransferRefusalCode = 0x02
	RefusalRetransmit         TransferRefusalCode = 0x03
	RefusalNotAcceptable      TransferRefusalCode = 0x04
	RefusalExtensionFailure   TransferRefusalCode = 0x05
	RefusalSessionTerminating TransferRefusalCode = 0x06
)

func (trc TransferRefusalCode) IsValid() bool {
	return trc <= RefusalSessionTerminating
}

// XFER_REFUSE is the message type code for bundle transfer refusal.
const XFER_REFUSE uint8 = 0x03

// TransferRefusalMessage rejects an in-progress or about-to-start transfer.
type TransferRefusalMessage struct {
	ReasonCode TransferRefusalCode
	TransferID uint64
}

func NewTransferRefusalMessage(reason TransferRefusalCode, tid uint64) *TransferRefusalMessage {
	return &TransferRefusalMessage{ReasonCode: reason, TransferID: tid}
}

func (trm TransferRefusalMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{XFER_REFUSE, trm.ReasonCode, trm.TransferID} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

func (trm *TransferRefusalMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != XFER_REFUSE {
		return fmt.Errorf("msgs: XFER_REFUSE type code mismatch: %#x != %#x", code, XFER_REFUSE)
	}
	for _, field := range []interface{}{&trm.ReasonCode, &trm.TransferID} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	if !trm.ReasonCode.IsValid() {
		return fmt.Errorf("msgs: XFER_REFUSE reason code %#x is invalid", trm.ReasonCode)
	}
	return nil
}
