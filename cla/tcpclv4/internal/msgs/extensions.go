// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// itemFlags are the single-bit flags on one Session/Transfer Extension Item,
// RFC 9174 §4.1.
type itemFlags uint8

// itemCritical marks an extension item the receiver MUST understand or
// reject the whole message carrying it.
const itemCritical itemFlags = 0x01

// ExtensionItem is one Session or Transfer Extension Item. Both SESS_INIT
// and XFER_SEGMENT carry a length-prefixed list of these with the same
// on-wire shape (flags, type, length, value), so they share one codec here
// instead of each message duplicating it.
type ExtensionItem struct {
	Critical bool
	Type     uint16
	Value    []byte
}

// ExtensionList is the Session/Transfer Extension Items field of a SESS_INIT
// or XFER_SEGMENT message.
type ExtensionList []ExtensionItem

// ErrUnrecognisedCriticalExtension is returned by Reject when the list
// carries an item this agent does not know how to process and whose
// critical bit is set, RFC 9174 §4.1's "terminate the session" case.
var ErrUnrecognisedCriticalExtension = errors.New("msgs: unrecognised critical extension item")

// Reject checks every item against known, the set of extension type codes
// this agent understands. It is nil for this agent, which defines no
// extension types of its own, so any critical item at all is rejected.
func (items ExtensionList) Reject(known map[uint16]bool) error {
	for _, item := range items {
		if item.Critical && !known[item.Type] {
			return fmt.Errorf("%w: type %#x", ErrUnrecognisedCriticalExtension, item.Type)
		}
	}
	return nil
}

// marshalExtensions writes items as a length-prefixed blob: a uint32 total
// byte length followed by each item's (flags, type, length, value).
func marshalExtensions(w io.Writer, items ExtensionList) error {
	var buf bytes.Buffer
	for _, item := range items {
		var flags itemFlags
		if item.Critical {
			flags = itemCritical
		}
		fields := []interface{}{flags, item.Type, uint16(len(item.Value))}
		for _, f := range fields {
			if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
				return err
			}
		}
		buf.Write(item.Value)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// unmarshalExtensions reads back the blob marshalExtensions writes.
func unmarshalExtensions(r io.Reader) (ExtensionList, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	br := bytes.NewReader(raw)
	var items ExtensionList
	for br.Len() > 0 {
		var flags itemFlags
		var typ uint16
		var valLen uint16
		for _, f := range []interface{}{&flags, &typ, &valLen} {
			if err := binary.Read(br, binary.BigEndian, f); err != nil {
				return nil, fmt.Errorf("msgs: truncated extension item: %w", err)
			}
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return nil, fmt.Errorf("msgs: truncated extension item value: %w", err)
		}
		items = append(items, ExtensionItem{Critical: flags&itemCritical != 0, Type: typ, Value: value})
	}
	return items, nil
}
