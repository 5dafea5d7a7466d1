// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// XFER_ACK is the message type code for bundle transfer acknowledgement.
const XFER_ACK uint8 = 0x02

// DataAcknowledgementMessage acknowledges AckLen cumulative octets of
// transfer TransferID. Flags echoes the corresponding XFER_SEGMENT's flags.
type DataAcknowledgementMessage struct {
	Flags      SegmentFlags
	TransferID uint64
	AckLen     uint64
}

func NewDataAcknowledgementMessage(flags SegmentFlags, tid, ackLen uint64) *DataAcknowledgementMessage {
	return &DataAcknowledgementMessage{Flags: flags, TransferID: tid, AckLen: ackLen}
}

func (dam DataAcknowledgementMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{XFER_ACK, dam.Flags, dam.TransferID, dam.AckLen} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

func (dam *DataAcknowledgementMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != XFER_ACK {
		return fmt.Errorf("msgs: XFER_ACK type code mismatch: %#x != %#x", code, XFER_ACK)
	}
	for _, field := range []interface{}{&dam.Flags, &dam.TransferID, &dam.AckLen} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}
