// SPDX-License-Identifier: GPL-3.0-or-later

package dispatcher

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/cla"
	"github.com/hardy-dtn/bpa-go/eidpattern"
	"github.com/hardy-dtn/bpa-go/rib"
	"github.com/hardy-dtn/bpa-go/store"
)

func mustPattern(t *testing.T, s string) eidpattern.Pattern {
	t.Helper()
	p, err := eidpattern.Parse(s)
	if err != nil {
		t.Fatalf("eidpattern.Parse(%q): %v", s, err)
	}
	return p
}

func newTestStore(t *testing.T, waitSampleInterval time.Duration) *store.Store {
	t.Helper()
	s, err := store.NewStore(t.TempDir(), waitSampleInterval)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		if closer, ok := s.Metadata.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	})
	return s
}

func testConfig(local bpv7.EID) Config {
	return Config{
		LocalNode:               local,
		StatusReportsEnabled:    true,
		MaxForwardingDelay:      2,
		ForwardAckDefaultWindow: time.Second,
		TombstoneLifetime:       time.Hour,
	}
}

// recordingService is a LocalService that records every delivery and status
// notification it receives, for assertions.
type recordingService struct {
	mu         sync.Mutex
	delivered  []*bpv7.Bundle
	statusSeen []bpv7.StatusInformationPos
}

func (r *recordingService) Deliver(bndl *bpv7.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, bndl)
	return nil
}

func (r *recordingService) OnStatusNotify(id bpv7.BundleID, from bpv7.EID, pos bpv7.StatusInformationPos, reason bpv7.ReasonCode, t bpv7.DtnTime, hasTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusSeen = append(r.statusSeen, pos)
}

func (r *recordingService) deliveredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

// fakeSender is a cla.Sender stub whose ForwardBundle outcome is driven by a
// caller-supplied sequence of canned responses, one per call.
type fakeSender struct {
	addr string

	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	sent      [][]byte
}

type fakeResponse struct {
	outcome cla.Outcome
	err     error
}

func (f *fakeSender) Address() string { return f.addr }

func (f *fakeSender) ForwardBundle(ctx context.Context, data []byte) (cla.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	resp := f.responses[i]
	f.calls++
	return resp.outcome, resp.err
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func buildTestBundle(t *testing.T, src, dst string, lifetime time.Duration, flags bpv7.BundleControlFlags) *bpv7.Bundle {
	t.Helper()
	bndl, err := bpv7.NewBuilder().
		Source(bpv7.MustParseEID(src)).
		Destination(bpv7.MustParseEID(dst)).
		CreationTimestampNow().
		Lifetime(lifetime).
		BundleControlFlags(flags).
		PayloadBlock([]byte("payload")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &bndl
}

func marshal(t *testing.T, bndl *bpv7.Bundle) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bndl.MarshalCBOR(&buf); err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	return buf.Bytes()
}

func TestIngressDeliversToLocalService(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://dest/**"),
		Action:  rib.Action{Kind: rib.ActionLocal, Service: "svc"},
		Source:  "static",
	})

	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, cla.NewManager(), nil)
	svc := &recordingService{}
	d.RegisterService("svc", svc)

	bndl := buildTestBundle(t, "dtn://sender/", "dtn://dest/", time.Minute, 0)
	if err := d.Ingress(marshal(t, bndl)); err != nil {
		t.Fatalf("Ingress: %v", err)
	}

	if svc.deliveredCount() != 1 {
		t.Fatalf("expected 1 delivery, got %d", svc.deliveredCount())
	}

	meta, err := st.Metadata.GetMetadata(bndl.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != store.StatusTombstone {
		t.Fatalf("expected delivered bundle to be tombstoned, got %v", meta.Status)
	}
}

func TestIngressSuppressesDuplicate(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://dest/**"),
		Action:  rib.Action{Kind: rib.ActionLocal, Service: "svc"},
		Source:  "static",
	})

	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, cla.NewManager(), nil)
	svc := &recordingService{}
	d.RegisterService("svc", svc)

	bndl := buildTestBundle(t, "dtn://sender/", "dtn://dest/", time.Minute, 0)
	raw := marshal(t, bndl)

	if err := d.Ingress(raw); err != nil {
		t.Fatalf("first Ingress: %v", err)
	}
	if err := d.Ingress(raw); err != nil {
		t.Fatalf("second Ingress: %v", err)
	}

	if svc.deliveredCount() != 1 {
		t.Fatalf("expected exactly 1 delivery despite repeat ingress, got %d", svc.deliveredCount())
	}
}

func TestIngressRejectsGarbage(t *testing.T) {
	st := newTestStore(t, time.Hour)
	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, rib.NewTable(), cla.NewManager(), nil)

	if err := d.Ingress([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatal("expected an error for a non-bundle first byte")
	}
}

func TestDispatchDropsExpiredBundle(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, cla.NewManager(), nil)

	bndl := buildTestBundle(t, "dtn://sender/", "dtn://dest/", time.Millisecond, 0)
	time.Sleep(20 * time.Millisecond)

	if err := d.Ingress(marshal(t, bndl)); err != nil {
		t.Fatalf("Ingress: %v", err)
	}

	meta, err := st.Metadata.GetMetadata(bndl.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != store.StatusTombstone {
		t.Fatalf("expected expired bundle to be tombstoned, got %v", meta.Status)
	}
}

func TestDispatchDropsHopLimitExceeded(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, cla.NewManager(), nil)

	bndl, err := bpv7.NewBuilder().
		Source(bpv7.MustParseEID("dtn://sender/")).
		Destination(bpv7.MustParseEID("dtn://dest/")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		HopCountBlock(0).
		PayloadBlock([]byte("x")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Ingress(marshal(t, &bndl)); err != nil {
		t.Fatalf("Ingress: %v", err)
	}

	meta, err := st.Metadata.GetMetadata(bndl.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != store.StatusTombstone {
		t.Fatalf("expected hop-limited bundle to be tombstoned, got %v", meta.Status)
	}
}

func TestForwardImmediateSuccessTombstones(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://dest/**"),
		Action:  rib.Action{Kind: rib.ActionForward, CLA: "test://peer"},
		Source:  "static",
	})

	manager := cla.NewManager()
	sender := &fakeSender{addr: "test://peer", responses: []fakeResponse{{outcome: cla.Outcome{}}}}
	manager.Register(sender, bpv7.MustParseEID("dtn://peer/"))

	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, manager, nil)

	bndl := buildTestBundle(t, "dtn://local/", "dtn://dest/", time.Minute, 0)
	if err := d.Send(*bndl); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if sender.callCount() != 1 {
		t.Fatalf("expected exactly 1 forward attempt, got %d", sender.callCount())
	}

	meta, err := st.Metadata.GetMetadata(bndl.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != store.StatusTombstone {
		t.Fatalf("expected forwarded bundle to be tombstoned, got %v", meta.Status)
	}
}

func TestForwardRetriesAfterCongestion(t *testing.T) {
	st := newTestStore(t, time.Second)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://dest/**"),
		Action:  rib.Action{Kind: rib.ActionForward, CLA: "test://peer"},
		Source:  "static",
	})

	manager := cla.NewManager()
	sender := &fakeSender{
		addr: "test://peer",
		responses: []fakeResponse{
			{outcome: cla.Outcome{Congested: true, Until: time.Now().Add(30 * time.Millisecond)}},
			{outcome: cla.Outcome{}},
		},
	}
	manager.Register(sender, bpv7.MustParseEID("dtn://peer/"))

	d := New(testConfig(bpv7.MustParseEID("dtn://local/")), st, table, manager, nil)

	bndl := buildTestBundle(t, "dtn://local/", "dtn://dest/", time.Minute, 0)
	if err := d.Send(*bndl); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if sender.callCount() != 2 {
		t.Fatalf("expected a congestion retry (2 calls), got %d", sender.callCount())
	}

	meta, err := st.Metadata.GetMetadata(bndl.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != store.StatusTombstone {
		t.Fatalf("expected eventually forwarded bundle to be tombstoned, got %v", meta.Status)
	}
}

func TestIngressReassemblesFragmentsBeforeDelivery(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://dest/**"),
		Action:  rib.Action{Kind: rib.ActionLocal, Service: "svc"},
		Source:  "static",
	})

	local := bpv7.MustParseEID("dtn://local/app")
	d := New(testConfig(local), st, table, cla.NewManager(), nil)
	svc := &recordingService{}
	d.RegisterService("svc", svc)

	full := []byte("hello fragmented world")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)

	buildFragment := func(offset uint64, chunk []byte) *bpv7.Bundle {
		return &bpv7.Bundle{
			Primary: bpv7.PrimaryBlock{
				Flags:             bpv7.IsFragment,
				CRCType:           bpv7.CRC32,
				Destination:       bpv7.MustParseEID("dtn://dest/"),
				Source:            local,
				ReportTo:          bpv7.Null(),
				CreationTimestamp: ts,
				Lifetime:          60000,
				Fragment:          &bpv7.FragmentInfo{Offset: offset, TotalDataLength: uint64(len(full))},
			},
			Blocks: []bpv7.Block{bpv7.NewBlock(bpv7.BlockTypePayload, 1, 0, chunk)},
		}
	}

	half := len(full) / 2
	frag1 := buildFragment(0, full[:half])
	frag2 := buildFragment(uint64(half), full[half:])

	if err := d.Ingress(marshal(t, frag1)); err != nil {
		t.Fatalf("Ingress frag1: %v", err)
	}
	if svc.deliveredCount() != 0 {
		t.Fatalf("expected no delivery before every fragment arrived, got %d", svc.deliveredCount())
	}

	if err := d.Ingress(marshal(t, frag2)); err != nil {
		t.Fatalf("Ingress frag2: %v", err)
	}
	if svc.deliveredCount() != 1 {
		t.Fatalf("expected exactly 1 delivery once reassembled, got %d", svc.deliveredCount())
	}

	svc.mu.Lock()
	payload, ok := svc.delivered[0].PayloadBlock()
	svc.mu.Unlock()
	if !ok {
		t.Fatal("reassembled bundle has no payload block")
	}
	if string(payload.Data) != string(full) {
		t.Fatalf("reassembled payload mismatch: got %q, want %q", payload.Data, full)
	}
}

func TestHandleAdministrativeRecordNotifiesOriginatingService(t *testing.T) {
	st := newTestStore(t, time.Hour)
	table := rib.NewTable()
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://local/admin"),
		Action:  rib.Action{Kind: rib.ActionAdminEndpoint},
		Source:  "static",
	})
	table.AddEntry(rib.Entry{
		Pattern: mustPattern(t, "dtn://local/app"),
		Action:  rib.Action{Kind: rib.ActionLocal, Service: "app"},
		Source:  "static",
	})

	d := New(testConfig(bpv7.MustParseEID("dtn://local/admin")), st, table, cla.NewManager(), nil)
	svc := &recordingService{}
	d.RegisterService("app", svc)

	refBndl := buildTestBundle(t, "dtn://local/app", "dtn://dest/", time.Minute, 0)
	sr := bpv7.NewStatusReport(refBndl, bpv7.DeliveredBundle, bpv7.ReasonNoAdditionalInformation, bpv7.DtnTimeNow())

	report, err := bpv7.NewBuilder().
		Source(bpv7.MustParseEID("dtn://dest/")).
		Destination(bpv7.MustParseEID("dtn://local/admin")).
		CreationTimestampNow().
		Lifetime(time.Minute).
		AdministrativeRecordPayload(sr).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Ingress(marshal(t, &report)); err != nil {
		t.Fatalf("Ingress: %v", err)
	}

	svc.mu.Lock()
	seen := append([]bpv7.StatusInformationPos(nil), svc.statusSeen...)
	svc.mu.Unlock()
	if len(seen) != 1 || seen[0] != bpv7.DeliveredBundle {
		t.Fatalf("expected a single DeliveredBundle notification, got %v", seen)
	}
}
