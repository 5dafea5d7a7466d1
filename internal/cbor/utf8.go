// SPDX-License-Identifier: GPL-3.0-or-later

package cbor

import (
	"fmt"
	"unicode/utf8"
)

var errUTF8 = fmt.Errorf("cbor: invalid UTF-8 in text string")

func validUTF8(b []byte) bool { return utf8.Valid(b) }
