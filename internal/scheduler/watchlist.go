package scheduler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/STRATINT/echoloop/internal/models"
)

// DefaultWatchlistCap bounds how many published posts await a metrics check.
const DefaultWatchlistCap = 20

// WatchlistEntry is a published post waiting for its engagement to be measured.
type WatchlistEntry struct {
	PostID    string          `json:"post_id"`
	Text      string          `json:"text"`
	Kind      models.PostKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// Watchlist holds the most recent published posts, oldest evicted first.
// It lives in memory only and starts empty.
type Watchlist struct {
	mu      sync.Mutex
	cap     int
	entries []WatchlistEntry
}

// NewWatchlist creates an empty watchlist bounded by capacity.
func NewWatchlist(capacity int) *Watchlist {
	if capacity <= 0 {
		capacity = DefaultWatchlistCap
	}
	return &Watchlist{cap: capacity}
}

// Add appends an entry, replacing any entry with the same post id, and
// evicts the oldest entries beyond capacity. It returns the evicted ids.
func (w *Watchlist) Add(entry WatchlistEntry) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, e := range w.entries {
		if e.PostID == entry.PostID {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			break
		}
	}
	w.entries = append(w.entries, entry)

	var evicted []string
	for len(w.entries) > w.cap {
		oldest := 0
		for i, e := range w.entries {
			if e.CreatedAt.Before(w.entries[oldest].CreatedAt) {
				oldest = i
			}
		}
		evicted = append(evicted, w.entries[oldest].PostID)
		w.entries = append(w.entries[:oldest], w.entries[oldest+1:]...)
	}
	return evicted
}

// Mature returns the entries older than age at now. An entry exactly age old
// is not yet mature. The entries stay in the watchlist until Remove is called.
func (w *Watchlist) Mature(now time.Time, age time.Duration) []WatchlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var mature []WatchlistEntry
	for _, e := range w.entries {
		if now.Sub(e.CreatedAt) > age {
			mature = append(mature, e)
		}
	}
	return mature
}

// Remove deletes the entry for postID and reports whether it was present.
func (w *Watchlist) Remove(postID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, e := range w.entries {
		if e.PostID == postID {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Entries returns a copy of the current entries in insertion order.
func (w *Watchlist) Entries() []WatchlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WatchlistEntry, len(w.entries))
	copy(out, w.entries)
	return out
}
