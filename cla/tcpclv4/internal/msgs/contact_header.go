// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ContactFlags are single-bit flags carried in the ContactHeader.
type ContactFlags uint8

const (
	// ContactCanTLS indicates the sending peer is capable of upgrading to TLS.
	ContactCanTLS ContactFlags = 0x01
)

// contactMagicByte is the first octet of the "dtn!" magic, which doubles as
// this message's type code in registry (the ContactHeader precedes any
// session and has no MessageType octet of its own).
const contactMagicByte uint8 = 0x64

// contactMagic is the full 4-octet "dtn!" string.
var contactMagic = []byte{contactMagicByte, 0x74, 0x6e, 0x21}

// tcpclVersion is the only TCPCLv4 version octet this agent speaks.
const tcpclVersion byte = 0x04

// ErrContactMagicMismatch means the peer's first four octets were not "dtn!";
// this is not a TCPCLv4 peer at all.
var ErrContactMagicMismatch = errors.New("msgs: contact header magic mismatch")

// ErrContactVersionMismatch means the peer sent a recognisable contact
// header for a TCPCLv4 version other than the one this agent speaks.
var ErrContactVersionMismatch = errors.New("msgs: contact header version mismatch")

// ContactHeader is exchanged by both peers immediately after the TCP
// connection is established, before any session message.
type ContactHeader struct {
	Flags ContactFlags
}

// NewContactHeader builds a ContactHeader carrying the given flags.
func NewContactHeader(flags ContactFlags) *ContactHeader {
	return &ContactHeader{Flags: flags}
}

func (ch ContactHeader) Marshal(w io.Writer) error {
	data := append(append(append([]byte(nil), contactMagic...), tcpclVersion), byte(ch.Flags))
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("msgs: wrote %d octets of contact header, expected %d", n, len(data))
	}
	return nil
}

// Unmarshal distinguishes a magic mismatch (not a TCPCLv4 peer at all) from
// a version mismatch (a TCPCLv4 peer speaking a version this agent does
// not), since the session layer reacts to the two differently.
func (ch *ContactHeader) Unmarshal(r io.Reader) error {
	data := make([]byte, 6)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	if magic := data[:4]; !bytes.Equal(magic, contactMagic) {
		return fmt.Errorf("%w: %x != %x", ErrContactMagicMismatch, magic, contactMagic)
	}
	if data[4] != tcpclVersion {
		return fmt.Errorf("%w: %d != %d", ErrContactVersionMismatch, data[4], tcpclVersion)
	}
	ch.Flags = ContactFlags(data[5])
	return nil
}
