// SPDX-License-Identifier: GPL-3.0-or-later

package serviceapi

import (
	"testing"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/cla"
	"github.com/hardy-dtn/bpa-go/dispatcher"
	"github.com/hardy-dtn/bpa-go/rib"
	"github.com/hardy-dtn/bpa-go/store"
)

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, *rib.Table) {
	t.Helper()
	st, err := store.NewStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	table := rib.NewTable()
	cfg := dispatcher.Config{
		LocalNode:            bpv7.MustParseEID("dtn://local/"),
		StatusReportsEnabled: false,
		MaxForwardingDelay:   2,
		TombstoneLifetime:    time.Hour,
	}
	d := dispatcher.New(cfg, st, table, cla.NewManager(), nil)
	return d, table
}

func buildBundle(t *testing.T, src, dst string, payload []byte) bpv7.Bundle {
	t.Helper()
	bndl, err := bpv7.NewBuilder().
		Source(bpv7.MustParseEID(src)).
		Destination(bpv7.MustParseEID(dst)).
		CreationTimestampNow().
		Lifetime(time.Minute).
		PayloadBlock(payload).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return bndl
}

func TestRegisterAndDeliverQueuesInMailbox(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)

	id, err := reg.Register(bpv7.MustParseEID("dtn://local/app"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bndl := buildBundle(t, "dtn://peer/", "dtn://local/app", []byte("hi"))
	if err := reg.Deliver(&bndl); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	fetched := reg.Fetch(id)
	if len(fetched) != 1 {
		t.Fatalf("expected one queued bundle, got %d", len(fetched))
	}
	blk, ok := fetched[0].PayloadBlock()
	if !ok || string(blk.Data) != "hi" {
		t.Fatalf("unexpected payload: %+v", blk)
	}

	// Fetch drains the mailbox.
	if again := reg.Fetch(id); len(again) != 0 {
		t.Fatalf("expected empty mailbox after Fetch, got %d", len(again))
	}
}

func TestDeliverIgnoresUnmatchedDestination(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)

	id, err := reg.Register(bpv7.MustParseEID("dtn://local/app"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	bndl := buildBundle(t, "dtn://peer/", "dtn://local/other", []byte("hi"))
	if err := reg.Deliver(&bndl); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if fetched := reg.Fetch(id); len(fetched) != 0 {
		t.Fatalf("expected no bundles delivered to unrelated endpoint, got %d", len(fetched))
	}
}

func TestUnregisterDropsMailboxAndRoute(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)

	id, err := reg.Register(bpv7.MustParseEID("dtn://local/app"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.Unregister(id)

	bndl := buildBundle(t, "dtn://peer/", "dtn://local/app", []byte("hi"))
	if err := reg.Deliver(&bndl); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if fetched := reg.Fetch(id); len(fetched) != 0 {
		t.Fatalf("expected unregistered client to receive nothing, got %d", len(fetched))
	}
	if _, ok := reg.endpointOf(id); ok {
		t.Fatalf("expected unregistered client id to be forgotten")
	}
}

func TestSendRejectsUnknownClient(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)

	bndl := buildBundle(t, "dtn://local/app", "dtn://peer/", nil)
	if err := reg.Send("no-such-client", bndl); err == nil {
		t.Fatalf("expected an error for an unregistered client id")
	}
}

type fakeLiveClient struct {
	pushed []bpv7.Bundle
}

func (f *fakeLiveClient) pushBundle(bndl bpv7.Bundle) error {
	f.pushed = append(f.pushed, bndl)
	return nil
}

func TestDeliverPrefersLiveClientOverMailbox(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)

	id, err := reg.Register(bpv7.MustParseEID("dtn://local/app"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	live := &fakeLiveClient{}
	reg.setLive(id, live)

	bndl := buildBundle(t, "dtn://peer/", "dtn://local/app", []byte("hi"))
	if err := reg.Deliver(&bndl); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(live.pushed) != 1 {
		t.Fatalf("expected bundle pushed to live client, got %d", len(live.pushed))
	}
	if fetched := reg.Fetch(id); len(fetched) != 0 {
		t.Fatalf("expected nothing queued in mailbox once a live client is attached, got %d", len(fetched))
	}
}
