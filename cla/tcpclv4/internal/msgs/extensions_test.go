// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestExtensionListRoundTrip(t *testing.T) {
	items := ExtensionList{
		{Critical: false, Type: 1, Value: []byte("a")},
		{Critical: true, Type: 2, Value: nil},
	}

	var buf bytes.Buffer
	if err := marshalExtensions(&buf, items); err != nil {
		t.Fatal(err)
	}

	out, err := unmarshalExtensions(&buf)
	if err != nil {
		t.Fatal(err)
	}

	// item 2's Value round-trips as an empty, non-nil slice; normalise
	// before comparing the rest of the structure.
	out[1].Value = nil
	if !reflect.DeepEqual(items, out) {
		t.Fatalf("extension list does not round-trip, expected %v and got %v", items, out)
	}
}

func TestExtensionListRejectUnrecognisedCritical(t *testing.T) {
	items := ExtensionList{
		{Critical: false, Type: 1},
		{Critical: true, Type: 2},
	}

	if err := items.Reject(nil); !errors.Is(err, ErrUnrecognisedCriticalExtension) {
		t.Fatalf("expected ErrUnrecognisedCriticalExtension, got %v", err)
	}

	if err := items.Reject(map[uint16]bool{2: true}); err != nil {
		t.Fatalf("item of a known type should not be rejected, got %v", err)
	}
}

func TestExtensionListEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := marshalExtensions(&buf, nil); err != nil {
		t.Fatal(err)
	}
	out, err := unmarshalExtensions(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no items, got %v", out)
	}
}
