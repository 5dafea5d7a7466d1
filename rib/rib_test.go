// SPDX-License-Identifier: GPL-3.0-or-later

package rib

import (
	"testing"
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/eidpattern"
)

func mustPattern(t *testing.T, s string) eidpattern.Pattern {
	t.Helper()
	p, err := eidpattern.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return p
}

func TestFindForwardSingleCLA(t *testing.T) {
	tbl := NewTable()
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "tcpclv4://peer"},
		Source:   "static",
		Priority: 0,
	})

	res, err := tbl.Find(bpv7.MustParseEID("ipn:2.1"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Kind != ResultForward || len(res.CLAs) != 1 || res.CLAs[0] != "tcpclv4://peer" {
		t.Errorf("got %+v", res)
	}
}

func TestFindNoMatchIsNoKnownRoute(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Find(bpv7.MustParseEID("ipn:9.9")); err != ErrNoKnownRoute {
		t.Errorf("got %v, want ErrNoKnownRoute", err)
	}
}

func TestFindOnlyLowestPriorityTierParticipates(t *testing.T) {
	tbl := NewTable()
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "low"},
		Source:   "a",
		Priority: 0,
	})
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "high"},
		Source:   "b",
		Priority: 5,
	})

	res, err := tbl.Find(bpv7.MustParseEID("ipn:2.1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CLAs) != 1 || res.CLAs[0] != "low" {
		t.Errorf("expected only the priority-0 tier to participate, got %+v", res)
	}
}

func TestFindDropShortCircuits(t *testing.T) {
	tbl := NewTable()
	reason := bpv7.ReasonNoKnownRouteToDestination
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionDrop, Drop: &reason},
		Source:   "a",
		Priority: 0,
	})

	_, err := tbl.Find(bpv7.MustParseEID("ipn:2.1"))
	var dropErr *DropError
	if err == nil {
		t.Fatal("expected a DropError")
	}
	if de, ok := err.(*DropError); !ok {
		t.Fatalf("got %T: %v", err, err)
	} else {
		dropErr = de
	}
	if *dropErr.Reason != reason {
		t.Errorf("got reason %v", *dropErr.Reason)
	}
}

func TestFindViaRecursesAndDetectsCycles(t *testing.T) {
	tbl := NewTable()
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.1.*"),
		Action:   Action{Kind: ActionVia, Via: bpv7.MustParseEID("ipn:2.1")},
		Source:   "a",
		Priority: 0,
	})
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "peer"},
		Source:   "a",
		Priority: 0,
	})

	res, err := tbl.Find(bpv7.MustParseEID("ipn:1.1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CLAs) != 1 || res.CLAs[0] != "peer" {
		t.Errorf("got %+v", res)
	}

	tbl2 := NewTable()
	tbl2.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.1.*"),
		Action:   Action{Kind: ActionVia, Via: bpv7.MustParseEID("ipn:2.1")},
		Source:   "a",
		Priority: 0,
	})
	tbl2.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionVia, Via: bpv7.MustParseEID("ipn:1.1")},
		Source:   "a",
		Priority: 0,
	})
	if _, err := tbl2.Find(bpv7.MustParseEID("ipn:1.1")); err != ErrNoKnownRoute {
		t.Errorf("expected cycle to yield ErrNoKnownRoute, got %v", err)
	}
}

func TestFindStoreContributesUntilAndEndsTier(t *testing.T) {
	tbl := NewTable()
	until := time.Now().Add(time.Hour)
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "peer"},
		Source:   "a",
		Priority: 0,
	})
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionStore, Until: until},
		Source:   "b",
		Priority: 0,
	})

	res, err := tbl.Find(bpv7.MustParseEID("ipn:2.1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Until.Equal(until) {
		t.Errorf("got Until %v, want %v", res.Until, until)
	}
}

func TestAddEntryReplacesIdenticalIdentityInPlace(t *testing.T) {
	tbl := NewTable()
	e := Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "peer"},
		Source:   "a",
		Priority: 0,
	}
	tbl.AddEntry(e)
	tbl.AddEntry(e)

	if len(tbl.entries) != 1 {
		t.Errorf("expected replace-in-place, got %d entries", len(tbl.entries))
	}
}

func TestWaitForRouteWakesOnMatchingMutation(t *testing.T) {
	tbl := NewTable()
	cancel := make(chan struct{})
	done := make(chan WaitOutcome, 1)

	go func() {
		done <- tbl.WaitForRoute(bpv7.MustParseEID("ipn:2.1"), 2*time.Second, cancel)
	}()

	time.Sleep(20 * time.Millisecond)
	tbl.AddEntry(Entry{
		Pattern:  mustPattern(t, "ipn:0.2.*"),
		Action:   Action{Kind: ActionForward, CLA: "peer"},
		Source:   "a",
		Priority: 0,
	})

	select {
	case outcome := <-done:
		if outcome != WaitRouteChange {
			t.Errorf("got %v, want WaitRouteChange", outcome)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for WaitForRoute to return")
	}
}

func TestWaitForRouteTimesOut(t *testing.T) {
	tbl := NewTable()
	cancel := make(chan struct{})
	outcome := tbl.WaitForRoute(bpv7.MustParseEID("ipn:2.1"), 20*time.Millisecond, cancel)
	if outcome != WaitTimeout {
		t.Errorf("got %v, want WaitTimeout", outcome)
	}
}
