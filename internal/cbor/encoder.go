// SPDX-License-Identifier: GPL-3.0-or-later

package cbor

import (
	"encoding/binary"
	"io"
	"math"
)

// writeHeader emits major/arg using the shortest possible additional-
// information encoding, which is always what this package's encode side
// produces -- there is no "write non-canonically" escape hatch beyond
// WriteArrayHeaderIndefinite/WriteMapHeaderIndefinite for the rare cases
// (the outer bundle array) where an indefinite length is mandatory rather
// than sloppy.
func writeHeader(w io.Writer, major MajorType, arg uint64) error {
	b := byte(major) << 5

	switch {
	case arg < 24:
		_, err := w.Write([]byte{b | byte(arg)})
		return err
	case arg <= 0xff:
		_, err := w.Write([]byte{b | 24, byte(arg)})
		return err
	case arg <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = b | 25
		binary.BigEndian.PutUint16(buf[1:], uint16(arg))
		_, err := w.Write(buf)
		return err
	case arg <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = b | 26
		binary.BigEndian.PutUint32(buf[1:], uint32(arg))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = b | 27
		binary.BigEndian.PutUint64(buf[1:], arg)
		_, err := w.Write(buf)
		return err
	}
}

// WriteUint writes v as a canonical CBOR unsigned integer.
func WriteUint(w io.Writer, v uint64) error {
	return writeHeader(w, MajorUint, v)
}

// WriteNegInt writes v (which must be negative) as a canonical CBOR
// negative integer.
func WriteNegInt(w io.Writer, v int64) error {
	if v >= 0 {
		return WriteUint(w, uint64(v))
	}
	return writeHeader(w, MajorNegInt, uint64(-1-v))
}

// WriteInt writes v as whichever of MajorUint/MajorNegInt is canonical.
func WriteInt(w io.Writer, v int64) error {
	if v >= 0 {
		return WriteUint(w, uint64(v))
	}
	return WriteNegInt(w, v)
}

// WriteBytes writes a definite-length byte string.
func WriteBytes(w io.Writer, b []byte) error {
	if err := writeHeader(w, MajorBytes, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteText writes a definite-length UTF-8 text string.
func WriteText(w io.Writer, s string) error {
	if err := writeHeader(w, MajorText, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// WriteArrayHeader writes a definite-length array header for n elements.
func WriteArrayHeader(w io.Writer, n uint64) error {
	return writeHeader(w, MajorArray, n)
}

// WriteArrayHeaderIndefinite writes an indefinite-length array opener. The
// caller MUST terminate the array with WriteBreak. This exists solely for
// constructs RFC 9171 mandates be indefinite-length (the outer bundle
// array); everything else this package writes is definite-length.
func WriteArrayHeaderIndefinite(w io.Writer) error {
	_, err := w.Write([]byte{byte(MajorArray)<<5 | 31})
	return err
}

// WriteMapHeader writes a definite-length map header for n key/value pairs.
func WriteMapHeader(w io.Writer, n uint64) error {
	return writeHeader(w, MajorMap, n)
}

// WriteBreak writes the break code (0xff) that terminates an
// indefinite-length array or map.
func WriteBreak(w io.Writer) error {
	_, err := w.Write([]byte{breakByte})
	return err
}

// WriteTag writes a tag number; the caller writes the tagged value next.
func WriteTag(w io.Writer, t uint64) error {
	return writeHeader(w, MajorTag, t)
}

// WriteBool writes a boolean simple value.
func WriteBool(w io.Writer, v bool) error {
	b := byte(MajorSimple)<<5 | simpleFalse
	if v {
		b = byte(MajorSimple)<<5 | simpleTrue
	}
	_, err := w.Write([]byte{b})
	return err
}

// WriteNull writes the CBOR null simple value.
func WriteNull(w io.Writer) error {
	_, err := w.Write([]byte{byte(MajorSimple)<<5 | simpleNull})
	return err
}

// WriteFloat writes f using the narrowest lossless encoding: float16 is
// preferred, then float32, then float64. NaN, +/-Inf and +/-0 always take
// the float16 form.
func WriteFloat(w io.Writer, f float64) error {
	if h, ok := float64ToFloat16(f); ok {
		_, err := w.Write([]byte{byte(MajorSimple)<<5 | simpleFloat16, byte(h >> 8), byte(h)})
		return err
	}

	f32 := float32(f)
	if float64(f32) == f {
		buf := make([]byte, 5)
		buf[0] = byte(MajorSimple)<<5 | simpleFloat32
		binary.BigEndian.PutUint32(buf[1:], math.Float32bits(f32))
		_, err := w.Write(buf)
		return err
	}

	buf := make([]byte, 9)
	buf[0] = byte(MajorSimple)<<5 | simpleFloat64
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
	_, err := w.Write(buf)
	return err
}
