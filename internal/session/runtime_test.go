package session

import (
	"testing"
	"time"

	"trailbot/internal/domain"
)

func TestRuntimePauseFlag(t *testing.T) {
	r := NewRuntime()
	if r.Paused() {
		t.Fatal("new runtime must not be paused")
	}
	r.SetPaused(true)
	if !r.Paused() {
		t.Fatal("pause flag not set")
	}
	r.SetPaused(false)
	if r.Paused() {
		t.Fatal("pause flag not cleared")
	}
}

func TestRuntimePositionsAreCopies(t *testing.T) {
	r := NewRuntime()
	p := &domain.Position{Pair: "XBTUSD", Side: domain.SideSell, EntryPrice: 100}
	r.PublishPosition("XBTUSD", p)

	got := r.Positions()
	if len(got) != 1 {
		t.Fatalf("positions = %d, want 1", len(got))
	}
	got[0].EntryPrice = 999
	if r.Positions()[0].EntryPrice != 100 {
		t.Error("mutation of a returned position leaked into the runtime")
	}

	r.PublishPosition("XBTUSD", nil)
	if len(r.Positions()) != 0 {
		t.Error("nil publish did not clear the position")
	}
}

func TestRuntimeStatusSorted(t *testing.T) {
	r := NewRuntime()
	now := time.Now()
	r.PublishStatus(PairStatus{Pair: "ETHUSD", Price: 2, UpdatedAt: now})
	r.PublishStatus(PairStatus{Pair: "ADAUSD", Price: 1, UpdatedAt: now})
	r.PublishStatus(PairStatus{Pair: "XBTUSD", Price: 3, UpdatedAt: now})

	got := r.Status()
	want := []string{"ADAUSD", "ETHUSD", "XBTUSD"}
	for i, pair := range want {
		if got[i].Pair != pair {
			t.Fatalf("status[%d] = %s, want %s", i, got[i].Pair, pair)
		}
	}

	// Re-publishing replaces, never appends.
	r.PublishStatus(PairStatus{Pair: "ETHUSD", Price: 5, UpdatedAt: now})
	if len(r.Status()) != 3 {
		t.Error("re-publish appended instead of replacing")
	}
}
