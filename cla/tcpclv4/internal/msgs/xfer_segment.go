// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// SegmentFlags are single-bit flags on a XFER_SEGMENT/XFER_ACK message.
type SegmentFlags uint8

const (
	// SegmentEnd marks the last segment of a transfer.
	SegmentEnd SegmentFlags = 0x01
	// SegmentStart marks the first segment of a transfer.
	SegmentStart SegmentFlags = 0x02
)

func (sf SegmentFlags) String() string {
	var flags []string
	if sf&SegmentEnd != 0 {
		flags = append(flags, "END")
	}
	if sf&SegmentStart != 0 {
		flags = append(flags, "START")
	}
	return strings.Join(flags, ",")
}

// XFER_SEGMENT is the message type code for bundle data transmission.
const XFER_SEGMENT uint8 = 0x01

// DataTransmissionMessage carries one segment of a bundle transfer, plus any
// Transfer Extension Items the sender attached to it.
type DataTransmissionMessage struct {
	Flags      SegmentFlags
	TransferID uint64
	Extensions ExtensionList
	Data       []byte
}

func NewDataTransmissionMessage(flags SegmentFlags, tid uint64, data []byte) *DataTransmissionMessage {
	return &DataTransmissionMessage{Flags: flags, TransferID: tid, Data: data}
}

func (dtm DataTransmissionMessage) Marshal(w io.Writer) error {
	fields := []interface{}{
		XFER_SEGMENT,
		dtm.Flags,
		dtm.TransferID,
	}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	if err := marshalExtensions(w, dtm.Extensions); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint64(len(dtm.Data))); err != nil {
		return err
	}
	if n, err := w.Write(dtm.Data); err != nil {
		return err
	} else if n != len(dtm.Data) {
		return fmt.Errorf("msgs: XFER_SEGMENT wrote %d of %d data bytes", n, len(dtm.Data))
	}
	return nil
}

func (dtm *DataTransmissionMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != XFER_SEGMENT {
		return fmt.Errorf("msgs: XFER_SEGMENT type code mismatch: %#x != %#x", code, XFER_SEGMENT)
	}

	for _, field := range []interface{}{&dtm.Flags, &dtm.TransferID} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	extensions, err := unmarshalExtensions(r)
	if err != nil {
		return fmt.Errorf("msgs: XFER_SEGMENT: %w", err)
	}
	dtm.Extensions = extensions

	var dataLen uint64
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return err
	}
	if dataLen > 0 {
		dtm.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, dtm.Data); err != nil {
			return err
		}
	}
	return nil
}
