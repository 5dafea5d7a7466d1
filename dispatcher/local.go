// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"bytes"
	"fmt"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// Send implements §4.5.6: a local service hands the dispatcher a bundle it
// built via bpv7.Builder; it is stored with DispatchPending and enters the
// dispatch loop exactly like any other locally accepted bundle, including a
// status report bundle emitted by this dispatcher itself (maybeEmitStatusReport
// calls back into Send).
func (d *Dispatcher) Send(bndl bpv7.Bundle) error {
	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		return fmt.Errorf("dispatcher: encoding outbound bundle: %w", err)
	}
	data := buf.Bytes()

	id := bndl.ID()
	inserted, err := d.store.Insert(id, data, false)
	if err != nil {
		return fmt.Errorf("dispatcher: storing outbound bundle: %w", err)
	}
	if !inserted {
		return fmt.Errorf("dispatcher: a bundle with identity %s already exists", id)
	}

	meta, err := d.store.Metadata.GetMetadata(id.String())
	if err != nil {
		return fmt.Errorf("dispatcher: reloading just-inserted metadata: %w", err)
	}

	bndlCopy := bndl
	d.dispatch(meta, &bndlCopy)
	return nil
}
