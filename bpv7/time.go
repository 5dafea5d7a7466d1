// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"time"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// DtnTime is an integer representation of milliseconds since the start of
// the year 2000 (UTC), per RFC 9171 §4.1.7.
type DtnTime uint64

const (
	milliseconds1970To2k = 946684800000
	milliToSec     int64 = 1000
	nanoToMilli    int64 = 1000000

	// DtnTimeZero is the zero timestamp: "this source has no accurate
	// clock", which obliges the presence of a Bundle Age extension block.
	DtnTimeZero DtnTime = 0
)

func (t DtnTime) unixMilliseconds() int64 {
	return int64(t) + milliseconds1970To2k
}

// Time returns the UTC time.Time for this DtnTime.
func (t DtnTime) Time() time.Time {
	unixSec := t.unixMilliseconds() / milliToSec
	unixNano := (t.unixMilliseconds() - unixSec*milliToSec) * nanoToMilli
	return time.Unix(unixSec, unixNano).UTC()
}

func (t DtnTime) String() string {
	return t.Time().Format("2006-01-02 15:04:05.000")
}

// DtnTimeFromTime converts a time.Time into a DtnTime.
func DtnTimeFromTime(t time.Time) DtnTime {
	return DtnTime((t.UTC().UnixNano() / nanoToMilli) - milliseconds1970To2k)
}

// DtnTimeNow returns the current time as a DtnTime.
func DtnTimeNow() DtnTime {
	return DtnTimeFromTime(time.Now())
}

// CreationTimestamp is the (creation_time, sequence_number) pair from
// RFC 9171 §4.2.7. A creation_time of zero means "source has no clock",
// which requires a companion Bundle Age extension block (§3 invariants).
type CreationTimestamp struct {
	Time DtnTime
	Seq  uint64
}

// NewCreationTimestamp builds a CreationTimestamp from its parts.
func NewCreationTimestamp(t DtnTime, seq uint64) CreationTimestamp {
	return CreationTimestamp{Time: t, Seq: seq}
}

// IsZeroTime reports whether this timestamp's source lacks an accurate clock.
func (ct CreationTimestamp) IsZeroTime() bool { return ct.Time == DtnTimeZero }

func (ct CreationTimestamp) String() string {
	return fmt.Sprintf("(%v, %d)", ct.Time, ct.Seq)
}

// MarshalCBOR writes this CreationTimestamp as a 2-element CBOR array.
func (ct CreationTimestamp) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, uint64(ct.Time)); err != nil {
		return err
	}
	return cbor.WriteUint(w, ct.Seq)
}

// UnmarshalCreationTimestamp reads a CreationTimestamp from s, returning the combined
// shortest verdict for both fields.
func UnmarshalCreationTimestamp(s *cbor.Series, maxRecursion int) (CreationTimestamp, bool, error) {
	child, err := s.OpenArray(maxRecursion)
	if err != nil {
		return CreationTimestamp{}, false, err
	}
	if n, ok := child.Count(); !ok || n != 2 {
		return CreationTimestamp{}, false, fmt.Errorf("bpv7: creation timestamp expects 2 elements")
	}

	t, s1, err := child.ParseUint()
	if err != nil {
		return CreationTimestamp{}, false, err
	}
	seq, s2, err := child.ParseUint()
	if err != nil {
		return CreationTimestamp{}, false, err
	}
	if end, err := child.AtEnd(); err != nil || !end {
		return CreationTimestamp{}, false, fmt.Errorf("bpv7: creation timestamp has trailing elements")
	}

	return CreationTimestamp{Time: DtnTime(t), Seq: seq}, s1 && s2, nil
}
