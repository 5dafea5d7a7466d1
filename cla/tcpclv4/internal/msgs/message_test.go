// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"reflect"
	"testing"
)

func TestSessionTerminationMessage(t *testing.T) {
	t1data := []byte{0x05, 0x00, 0x00}
	t1message := NewSessionTerminationMessage(0, TerminationUnknown)

	t2data := []byte{0x05, 0x01, 0x01}
	t2message := NewSessionTerminationMessage(TerminationReply, TerminationIdleTimeout)

	t3data := []byte{0xff, 0x00, 0x00}
	t4data := []byte{0x05, 0x00, 0xff}

	tests := []struct {
		valid bool
		data  []byte
		stm   *SessionTerminationMessage
	}{
		{true, t1data, t1message},
		{true, t2data, t2message},
		{false, t3data, nil},
		{false, t4data, nil},
	}

	for _, test := range tests {
		stm := new(SessionTerminationMessage)
		buf := bytes.NewBuffer(test.data)

		err := stm.Unmarshal(buf)
		if (err == nil) != test.valid {
			t.Fatalf("error state was not expected; valid := %t, got := %v", test.valid, err)
		}
		if !test.valid {
			continue
		}
		if !reflect.DeepEqual(test.stm, stm) {
			t.Fatalf("SessionTerminationMessage does not match, expected %v and got %v", test.stm, stm)
		}

		if err := test.stm.Marshal(buf); err != nil {
			t.Fatal(err)
		} else if data := buf.Bytes(); !bytes.Equal(data, test.data) {
			t.Fatalf("data does not match, expected %x and got %x", test.data, data)
		}
	}
}

func TestDataAcknowledgementMessage(t *testing.T) {
	t1data := []byte{
		0x02,
		0x03,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff,
	}
	t1message := NewDataAcknowledgementMessage(SegmentEnd|SegmentStart, 1, 255)

	t2data := []byte{
		0x03,
		0x03,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff,
	}

	tests := []struct {
		valid bool
		data  []byte
		dam   *DataAcknowledgementMessage
	}{
		{true, t1data, t1message},
		{false, t2data, nil},
	}

	for _, test := range tests {
		dam := new(DataAcknowledgementMessage)
		buf := bytes.NewBuffer(test.data)

		err := dam.Unmarshal(buf)
		if (err == nil) != test.valid {
			t.Fatalf("error state was not expected; valid := %t, got := %v", test.valid, err)
		}
		if !test.valid {
			continue
		}
		if !reflect.DeepEqual(test.dam, dam) {
			t.Fatalf("DataAcknowledgementMessage does not match, expected %v and got %v", test.dam, dam)
		}

		if err := test.dam.Marshal(buf); err != nil {
			t.Fatal(err)
		} else if data := buf.Bytes(); !bytes.Equal(data, test.data) {
			t.Fatalf("data does not match, expected %x and got %x", test.data, data)
		}
	}
}

func TestDataTransmissionMessage(t *testing.T) {
	t1data := []byte{
		0x01,
		0x02,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x75, 0x66, 0x66,
	}
	t1message := NewDataTransmissionMessage(SegmentStart, 1, []byte("uff"))

	t3data := []byte{
		0x04,
		0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	// t5data carries a 1-byte Transfer Extension Items blob, too short to
	// hold even one item's (flags, type, length) header -- a truncated
	// extension item, which Unmarshal must reject rather than silently
	// skip.
	t5data := []byte{
		0x01,
		0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01,
		0xff,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	// t6data carries one well-formed, non-critical extension item (type 7)
	// ahead of an empty payload, exercising the item codec's round trip
	// rather than just skipping the bytes.
	t6message := NewDataTransmissionMessage(SegmentStart, 1, nil)
	t6message.Extensions = ExtensionList{{Critical: false, Type: 7, Value: []byte{0xab}}}
	var t6buf bytes.Buffer
	if err := t6message.Marshal(&t6buf); err != nil {
		t.Fatal(err)
	}
	t6data := t6buf.Bytes()

	tests := []struct {
		valid     bool
		bijective bool
		data      []byte
		dtm       *DataTransmissionMessage
	}{
		{true, true, t1data, t1message},
		{false, false, t3data, nil},
		{false, false, t5data, nil},
		{true, true, t6data, t6message},
	}

	for _, test := range tests {
		dtm := new(DataTransmissionMessage)
		buf := bytes.NewBuffer(test.data)

		err := dtm.Unmarshal(buf)
		if (err == nil) != test.valid {
			t.Fatalf("error state was not expected; valid := %t, got := %v", test.valid, err)
		}
		if !test.valid {
			continue
		}
		if !reflect.DeepEqual(test.dtm, dtm) {
			t.Fatalf("DataTransmissionMessage does not match, expected %v and got %v", test.dtm, dtm)
		}

		if err := test.dtm.Marshal(buf); err != nil {
			t.Fatal(err)
		} else if data := buf.Bytes(); test.bijective && !bytes.Equal(data, test.data) {
			t.Fatalf("data does not match, expected %x and got %x", test.data, data)
		}
	}
}

func TestMessageRejectionMessage(t *testing.T) {
	tests := []struct {
		valid bool
		data  []byte
		mrm   *MessageRejectionMessage
	}{
		{true, []byte{0x06, 0x01, 0x01}, NewMessageRejectionMessage(RejectionTypeUnknown, 0x01)},
		{true, []byte{0x06, 0x03, 0x01}, NewMessageRejectionMessage(RejectionUnexpected, 0x01)},
		{false, []byte{0x07, 0x00, 0x00}, nil},
		{false, []byte{0x06, 0xf0, 0x00}, nil},
	}

	for _, test := range tests {
		mrm := new(MessageRejectionMessage)
		buf := bytes.NewBuffer(test.data)

		err := mrm.Unmarshal(buf)
		if (err == nil) != test.valid {
			t.Fatalf("error state was not expected; valid := %t, got := %v", test.valid, err)
		}
		if !test.valid {
			continue
		}
		if !reflect.DeepEqual(test.mrm, mrm) {
			t.Fatalf("MessageRejectionMessage does not match, expected %v and got %v", test.mrm, mrm)
		}

		if err := test.mrm.Marshal(buf); err != nil {
			t.Fatal(err)
		} else if data := buf.Bytes(); !bytes.Equal(data, test.data) {
			t.Fatalf("data does not match, expected %x and got %x", test.data, data)
		}
	}
}

func TestContactHeaderRoundTrip(t *testing.T) {
	ch := NewContactHeader(ContactCanTLS)

	var buf bytes.Buffer
	if err := ch.Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	var out ContactHeader
	if err := out.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if out.Flags != ch.Flags {
		t.Fatalf("flags mismatch: %v != %v", out.Flags, ch.Flags)
	}
}

func TestSessionInitMessageRoundTrip(t *testing.T) {
	si := NewSessionInitMessage(30, 65535, 0xffffffff, "dtn://node-a/")

	var buf bytes.Buffer
	if err := si.Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	var out SessionInitMessage
	if err := out.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*si, out) {
		t.Fatalf("SessionInitMessage does not round-trip, expected %v and got %v", *si, out)
	}
}

func TestTransferRefusalMessageRoundTrip(t *testing.T) {
	trm := NewTransferRefusalMessage(RefusalNoResources, 7)

	var buf bytes.Buffer
	if err := trm.Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	var out TransferRefusalMessage
	if err := out.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*trm, out) {
		t.Fatalf("TransferRefusalMessage does not round-trip, expected %v and got %v", *trm, out)
	}
}

func TestReadMessageDispatchesByTypeCode(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKeepaliveMessage().Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	msg, err := ReadMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := msg.(*KeepaliveMessage); !ok {
		t.Fatalf("expected *KeepaliveMessage, got %T", msg)
	}
}
