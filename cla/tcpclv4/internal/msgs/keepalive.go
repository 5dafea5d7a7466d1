// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// KEEPALIVE is the message type code for session keepalives.
const KEEPALIVE uint8 = 0x04

// KeepaliveMessage carries no fields; its sole purpose is resetting both
// peers' idle timers.
type KeepaliveMessage struct{}

func NewKeepaliveMessage() *KeepaliveMessage { return &KeepaliveMessage{} }

func (KeepaliveMessage) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, KEEPALIVE)
}

func (km *KeepaliveMessage) Unmarshal(r io.Reader) error {
	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return err
	}
	if code != KEEPALIVE {
		return fmt.Errorf("msgs: KEEPALIVE type code mismatch: %#x != %#x", code, KEEPALIVE)
	}
	return nil
}
