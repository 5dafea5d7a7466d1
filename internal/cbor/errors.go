// SPDX-License-Identifier: GPL-3.0-or-later

package cbor

import "fmt"

// NeedMoreDataError is returned when the decoder ran off the end of its
// buffer. A recoverable error on a top-level call means the caller may
// supply more bytes and retry decoding from the start of its buffer.
type NeedMoreDataError struct {
	N int
}

func (e NeedMoreDataError) Error() string {
	return fmt.Sprintf("cbor: need %d more byte(s)", e.N)
}

// IncorrectTypeError is raised when a typed Series accessor is asked to
// parse a major type other than the one it found on the wire.
type IncorrectTypeError struct {
	Expected MajorType
	Got      MajorType
}

func (e IncorrectTypeError) Error() string {
	return fmt.Sprintf("cbor: expected major type %d, got %d", e.Expected, e.Got)
}

var (
	// ErrTooBig is raised for an argument or length that overflows the
	// Go type being decoded into.
	ErrTooBig = fmt.Errorf("cbor: value too big")

	// ErrInvalidMinorValue is raised for a reserved additional-information
	// nibble (28, 29, 30), or for an indefinite-length marker (31) on an
	// integer or a tag.
	ErrInvalidMinorValue = fmt.Errorf("cbor: invalid minor value")

	// ErrInvalidChunk is raised for a chunk of an indefinite byte/text
	// string whose major type does not match the enclosing string, or
	// which is itself indefinite-length.
	ErrInvalidChunk = fmt.Errorf("cbor: invalid indefinite string chunk")

	// ErrInvalidSimpleType is raised for an unassigned simple value.
	ErrInvalidSimpleType = fmt.Errorf("cbor: invalid simple type")

	// ErrPartialMap is raised when an indefinite-length map's break
	// arrives after a key but before its value.
	ErrPartialMap = fmt.Errorf("cbor: map ended on a key without a value")

	// ErrNoMoreItems is raised when a caller asks for another item from a
	// Series that has already reached its end.
	ErrNoMoreItems = fmt.Errorf("cbor: no more items in series")

	// ErrAdditionalItems is raised when trailing bytes follow a document
	// that was supposed to be the entirety of the input (RFC 8742
	// sequences are not accepted implicitly).
	ErrAdditionalItems = fmt.Errorf("cbor: additional data after value")

	// ErrMaxRecursion is raised when skipping or walking a nested value
	// would exceed the caller-supplied recursion budget.
	ErrMaxRecursion = fmt.Errorf("cbor: maximum recursion depth exceeded")

	// ErrPrecisionLoss is raised internally while picking the narrowest
	// lossless float width; it never escapes a correct encoder.
	ErrPrecisionLoss = fmt.Errorf("cbor: float precision loss")

	// ErrJustTags is raised when a tag (or run of tags) is not followed by
	// a value before the input ends.
	ErrJustTags = fmt.Errorf("cbor: tag(s) not followed by a value")

	// ErrUnexpectedBreak is raised when a break code (0xff) is read where
	// no indefinite-length collection is open.
	ErrUnexpectedBreak = fmt.Errorf("cbor: unexpected break code")
)
