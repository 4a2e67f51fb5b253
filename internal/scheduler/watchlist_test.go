package scheduler

import (
	"fmt"
	"testing"
	"time"
)

func TestWatchlistAddReplacesSameID(t *testing.T) {
	w := NewWatchlist(3)
	w.Add(WatchlistEntry{PostID: "a", CreatedAt: t0})
	w.Add(WatchlistEntry{PostID: "a", Text: "again", CreatedAt: t0.Add(time.Minute)})

	entries := w.Entries()
	if len(entries) != 1 || entries[0].Text != "again" {
		t.Fatalf("expected single replaced entry, got %+v", entries)
	}
}

func TestWatchlistEvictsByCreatedAt(t *testing.T) {
	w := NewWatchlist(2)
	w.Add(WatchlistEntry{PostID: "b", CreatedAt: t0.Add(time.Hour)})
	w.Add(WatchlistEntry{PostID: "a", CreatedAt: t0})

	evicted := w.Add(WatchlistEntry{PostID: "c", CreatedAt: t0.Add(2 * time.Hour)})
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected oldest entry a evicted, got %v", evicted)
	}
	if w.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", w.Len())
	}
}

func TestWatchlistMatureAndRemove(t *testing.T) {
	w := NewWatchlist(DefaultWatchlistCap)
	for i := 0; i < 3; i++ {
		w.Add(WatchlistEntry{PostID: fmt.Sprint(i), CreatedAt: t0.Add(time.Duration(i) * time.Hour)})
	}

	mature := w.Mature(t0.Add(4*time.Hour), 3*time.Hour)
	if len(mature) != 1 || mature[0].PostID != "0" {
		t.Fatalf("expected only entry 0 mature, entry 1 is exactly at the boundary: %+v", mature)
	}
	if got := w.Mature(t0.Add(4*time.Hour+time.Nanosecond), 3*time.Hour); len(got) != 2 {
		t.Fatalf("expected entries 0 and 1 mature just past the boundary, got %+v", got)
	}
	if w.Len() != 3 {
		t.Fatal("Mature must not remove entries")
	}

	w.Remove("0")
	w.Remove("missing")
	if w.Len() != 2 {
		t.Fatalf("expected 2 entries after remove, got %d", w.Len())
	}
}

func TestNewWatchlistDefaultsCapacity(t *testing.T) {
	w := NewWatchlist(0)
	for i := 0; i < DefaultWatchlistCap+5; i++ {
		w.Add(WatchlistEntry{PostID: fmt.Sprint(i), CreatedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	if w.Len() != DefaultWatchlistCap {
		t.Fatalf("expected default cap %d, got %d", DefaultWatchlistCap, w.Len())
	}
}
