// SPDX-License-Identifier: GPL-3.0-or-later

package cbor

// SeriesKind distinguishes the three shapes a Series can walk: a raw
// top-level sequence of concatenated items (RFC 8742, D=0), an array
// (D=1), or a map (D=2, counted in pairs).
type SeriesKind int

const (
	SeriesSequence SeriesKind = iota
	SeriesArray
	SeriesMap
)

// Series is a cursor over a CBOR sequence, array or map. It never
// materialises its elements eagerly; callers pull typed values one at a
// time and may descend into nested aggregates with OpenArray/OpenMap.
type Series struct {
	dec       *Decoder
	kind      SeriesKind
	definite  bool
	remaining uint64 // item count remaining, valid only if definite
	done      bool
}

// OpenArray begins reading an array header off dec and returns a Series
// over its elements. maxRecursion is the recursion budget remaining for
// values nested inside this array (maxRecursion throughout this package counts
// array/map nesting, not scalar reads).
func (d *Decoder) OpenArray(maxRecursion int) (*Series, error) {
	if maxRecursion <= 0 {
		return nil, ErrMaxRecursion
	}
	h, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if h.major != MajorArray {
		return nil, IncorrectTypeError{MajorArray, h.major}
	}
	return &Series{dec: d, kind: SeriesArray, definite: !h.indefinite, remaining: h.arg}, nil
}

// OpenMap is OpenArray's counterpart for maps. Count reports key/value
// pairs, while the series itself steps through keys and values one item
// at a time.
func (d *Decoder) OpenMap(maxRecursion int) (*Series, error) {
	if maxRecursion <= 0 {
		return nil, ErrMaxRecursion
	}
	h, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if h.major != MajorMap {
		return nil, IncorrectTypeError{MajorMap, h.major}
	}
	// remaining tracks raw items (key, value, key, value, ...), not pairs,
	// so each scalar read through Next/ParseX consumes exactly one unit.
	remaining := h.arg
	if !h.indefinite {
		remaining *= 2
	}
	return &Series{dec: d, kind: SeriesMap, definite: !h.indefinite, remaining: remaining}, nil
}

// OpenSequence wraps dec as a raw CBOR sequence (RFC 8742): an indefinite
// run of items terminated only by the end of the buffer, never by a break
// code. Used by diagnostic/log readers; wire bundles MUST NOT be decoded
// this way (trailing bytes after a bundle are AdditionalData, not a second
// sequence element).
func OpenSequence(d *Decoder) *Series {
	return &Series{dec: d, kind: SeriesSequence, definite: false}
}

// Count returns the definite item count (pairs, for a map) and whether the
// series is in fact definite-length.
func (s *Series) Count() (uint64, bool) {
	if !s.definite {
		return 0, false
	}
	if s.kind == SeriesMap {
		return s.remaining / 2, true
	}
	return s.remaining, true
}

// IsDefinite reports whether this series was opened with a definite
// length (as opposed to the indefinite-length array/map encoding).
func (s *Series) IsDefinite() bool { return s.definite }

// Pos returns the underlying decoder's current byte offset.
func (s *Series) Pos() int { return s.dec.Pos() }

// Decoder returns the underlying Decoder, for callers that need to open a
// fresh Series scoped to one already-read byte-string value (e.g.
// re-parsing a decrypted block payload).
func (s *Series) Decoder() *Decoder { return s.dec }

// AtEnd reports whether the series has no more items. For a definite
// series this is a pure count check. For an indefinite array/map it peeks
// for (and, if found, consumes) the break code. For a raw sequence it
// reports whether the underlying buffer is exhausted.
func (s *Series) AtEnd() (bool, error) {
	if s.done {
		return true, nil
	}

	switch s.kind {
	case SeriesSequence:
		if s.dec.AtEOF() {
			s.done = true
			return true, nil
		}
		return false, nil

	default:
		if s.definite {
			if s.remaining == 0 {
				s.done = true
				return true, nil
			}
			return false, nil
		}

		b, err := s.dec.peekByte()
		if err != nil {
			return false, err
		}
		if b == breakByte {
			s.dec.pos++
			s.done = true
			return true, nil
		}
		return false, nil
	}
}

func (s *Series) consumeOne() {
	if s.definite {
		if s.remaining > 0 {
			s.remaining--
		}
	}
}

// Next decodes the next scalar item of the series (a key or a value, for a
// map -- callers wanting pair semantics call Next twice per entry). It is
// an error to call Next past AtEnd.
func (s *Series) Next() (Value, []uint64, bool, error) {
	if end, err := s.AtEnd(); err != nil {
		return Value{}, nil, false, err
	} else if end {
		return Value{}, nil, false, ErrNoMoreItems
	}

	v, tags, shortest, err := s.dec.ParseValue()
	if err != nil {
		return Value{}, tags, shortest, err
	}
	s.consumeOne()
	return v, tags, shortest, nil
}

// ParseUint decodes the next item, requiring it to be an unsigned integer.
func (s *Series) ParseUint() (uint64, bool, error) {
	v, _, shortest, err := s.Next()
	if err != nil {
		return 0, shortest, err
	}
	if v.Kind != KindUint {
		return 0, shortest, IncorrectTypeError{MajorUint, kindMajor(v.Kind)}
	}
	return v.Uint, shortest, nil
}

// ParseInt decodes the next item as a signed integer, accepting both
// MajorUint and MajorNegInt.
func (s *Series) ParseInt() (int64, bool, error) {
	v, _, shortest, err := s.Next()
	if err != nil {
		return 0, shortest, err
	}
	switch v.Kind {
	case KindUint:
		if v.Uint > 1<<63-1 {
			return 0, shortest, ErrTooBig
		}
		return int64(v.Uint), shortest, nil
	case KindNegInt:
		return v.Int, shortest, nil
	default:
		return 0, shortest, IncorrectTypeError{MajorNegInt, kindMajor(v.Kind)}
	}
}

// ParseBytes decodes the next item as a byte string, transparently
// reassembling an indefinite-length chunked string.
func (s *Series) ParseBytes() ([]byte, bool, error) {
	if end, err := s.AtEnd(); err != nil {
		return nil, false, err
	} else if end {
		return nil, false, ErrNoMoreItems
	}

	tags, shortest, err := s.dec.ReadTags()
	if err != nil {
		return nil, shortest, err
	}
	_ = tags

	b, err := s.dec.peekByte()
	if err != nil {
		return nil, shortest, err
	}
	if MajorType(b>>5) != MajorBytes {
		return nil, shortest, IncorrectTypeError{MajorBytes, MajorType(b >> 5)}
	}

	h, err := s.dec.readHeader()
	if err != nil {
		return nil, shortest, err
	}
	shortest = shortest && h.shortest

	if h.indefinite {
		out, _, err := s.dec.ReadIndefiniteBytes(MajorBytes)
		s.consumeOne()
		return out, false, err
	}

	body, ok, bodyShortest, err := s.dec.readStringBody(h, MajorBytes)
	if err != nil {
		return nil, shortest, err
	}
	_ = ok
	s.consumeOne()
	return body, shortest && bodyShortest, nil
}

// ParseText decodes the next item as a text string.
func (s *Series) ParseText() (string, bool, error) {
	v, _, shortest, err := s.Next()
	if err != nil {
		return "", shortest, err
	}
	if v.Kind != KindText {
		return "", shortest, IncorrectTypeError{MajorText, kindMajor(v.Kind)}
	}
	return v.Text, shortest, nil
}

// ParseBool decodes the next item as a boolean simple value.
func (s *Series) ParseBool() (bool, bool, error) {
	v, _, shortest, err := s.Next()
	if err != nil {
		return false, shortest, err
	}
	if v.Kind != KindBool {
		return false, shortest, IncorrectTypeError{MajorSimple, kindMajor(v.Kind)}
	}
	return v.Bool, shortest, nil
}

// ParseFloat decodes the next item as a floating point simple value.
func (s *Series) ParseFloat() (float64, bool, error) {
	v, _, shortest, err := s.Next()
	if err != nil {
		return 0, shortest, err
	}
	if v.Kind != KindFloat {
		return 0, shortest, IncorrectTypeError{MajorSimple, kindMajor(v.Kind)}
	}
	return v.Float, shortest, nil
}

// OpenArray descends into the next item, requiring it to be an array.
func (s *Series) OpenArray(maxRecursion int) (*Series, error) {
	if end, err := s.AtEnd(); err != nil {
		return nil, err
	} else if end {
		return nil, ErrNoMoreItems
	}
	child, err := s.dec.OpenArray(maxRecursion - 1)
	if err != nil {
		return nil, err
	}
	s.consumeOne()
	return child, nil
}

// OpenMap descends into the next item, requiring it to be a map.
func (s *Series) OpenMap(maxRecursion int) (*Series, error) {
	if end, err := s.AtEnd(); err != nil {
		return nil, err
	} else if end {
		return nil, ErrNoMoreItems
	}
	child, err := s.dec.OpenMap(maxRecursion - 1)
	if err != nil {
		return nil, err
	}
	s.consumeOne()
	return child, nil
}

// SkipValue decodes and discards the next item, recursing into nested
// aggregates up to maxRecursion levels deep.
func (s *Series) SkipValue(maxRecursion int) error {
	if end, err := s.AtEnd(); err != nil {
		return err
	} else if end {
		return ErrNoMoreItems
	}

	if err := skipOne(s.dec, maxRecursion); err != nil {
		return err
	}
	s.consumeOne()
	return nil
}

func skipOne(d *Decoder, maxRecursion int) error {
	v, _, _, err := d.ParseValue()
	if err != nil {
		return err
	}

	switch v.Kind {
	case KindArray:
		if maxRecursion <= 0 {
			return ErrMaxRecursion
		}
		child := &Series{dec: d, kind: SeriesArray, definite: v.Definite, remaining: v.ArrayLen}
		for {
			end, err := child.AtEnd()
			if err != nil {
				return err
			}
			if end {
				break
			}
			if err := skipOne(d, maxRecursion-1); err != nil {
				return err
			}
			child.consumeOne()
		}
	case KindMap:
		if maxRecursion <= 0 {
			return ErrMaxRecursion
		}
		child := &Series{dec: d, kind: SeriesMap, definite: v.Definite, remaining: v.MapLen * 2}
		for {
			end, err := child.AtEnd()
			if err != nil {
				return err
			}
			if end {
				break
			}
			if err := skipOne(d, maxRecursion-1); err != nil { // key
				return err
			}
			child.consumeOne()
			if end, err := child.AtEnd(); err != nil {
				return err
			} else if end {
				return ErrPartialMap
			}
			if err := skipOne(d, maxRecursion-1); err != nil { // value
				return err
			}
			child.consumeOne()
		}
	case KindBytes:
		if !v.Definite {
			_, _, err := d.ReadIndefiniteBytes(MajorBytes)
			return err
		}
	case KindText:
		if !v.Definite {
			_, _, err := d.ReadIndefiniteBytes(MajorText)
			return err
		}
	}
	return nil
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func kindMajor(k Kind) MajorType {
	switch k {
	case KindUint:
		return MajorUint
	case KindNegInt:
		return MajorNegInt
	case KindBytes:
		return MajorBytes
	case KindText:
		return MajorText
	case KindArray:
		return MajorArray
	case KindMap:
		return MajorMap
	default:
		return MajorSimple
	}
}
