// SPDX-License-Identifier: GPL-3.0-or-later

package rib

import (
	"errors"
	"fmt"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// ResultKind distinguishes the outcomes Find may produce, spec §4.6's
// AdminEndpoint | Deliver(service) | Forward(clas, until).
type ResultKind int

const (
	ResultAdminEndpoint ResultKind = iota
	ResultDeliver
	ResultForward
)

// Result is the successful outcome of a RIB lookup.
type Result struct {
	Kind    ResultKind
	Service string    // ResultDeliver
	CLAs    []string  // ResultForward, ECMP-shuffled when len > 1
	Until   time.Time // ResultForward: the tightest Store-contributed deadline, zero if none
}

// DropError is the error form of a RIB lookup outcome: a Drop(reason)
// action was reached. A lookup that matches no entry returns
// ErrNoKnownRoute instead.
type DropError struct {
	Reason *bpv7.ReasonCode
}

func (e *DropError) Error() string {
	if e.Reason == nil {
		return "rib: dropped, no reason given"
	}
	return fmt.Sprintf("rib: dropped, reason %d", *e.Reason)
}

// ErrNoKnownRoute is returned when no entry matches a destination, or a Via
// chain revisits a destination it already passed through.
var ErrNoKnownRoute = errors.New("rib: no known route to destination from here")
