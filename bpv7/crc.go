// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/howeyc/crc16"
)

// CRCType indicates which CRC a block carries, RFC 9171 §4.1.1.
type CRCType uint64

const (
	CRCNone CRCType = 0
	CRC16   CRCType = 1 // CRC-16/X-25
	CRC32   CRCType = 2 // CRC-32C (Castagnoli)
)

func (c CRCType) String() string {
	switch c {
	case CRCNone:
		return "none"
	case CRC16:
		return "crc16"
	case CRC32:
		return "crc32"
	default:
		return fmt.Sprintf("unrecognised(%d)", uint64(c))
	}
}

// Len returns the encoded CRC field length in bytes, or 0 for CRCNone.
func (c CRCType) Len() int {
	switch c {
	case CRC16:
		return 2
	case CRC32:
		return 4
	default:
		return 0
	}
}

var (
	crc16Table = crc16.MakeTable(crc16.CCITT)
	crc32Table = crc32.MakeTable(crc32.Castagnoli)
)

// computeCRC calculates the CRC value of data (the block's CBOR encoding
// with its CRC field set to a zero-filled placeholder of the correct
// width) for the given CRCType, returned in network byte order.
func computeCRC(t CRCType, data []byte) []byte {
	switch t {
	case CRCNone:
		return nil
	case CRC16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, crc16.Checksum(data, crc16Table))
		return b
	case CRC32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, crc32.Checksum(data, crc32Table))
		return b
	default:
		return nil
	}
}

// zeroCRC returns a zero-filled placeholder of t's encoded width.
func zeroCRC(t CRCType) []byte {
	return make([]byte, t.Len())
}
