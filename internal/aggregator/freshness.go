package aggregator

import (
	"sync"
	"time"

	"github.com/STRATINT/echoloop/internal/models"
)

// DefaultFreshnessWindow is how long a symbol stays eligible after it is first seen.
const DefaultFreshnessWindow = 120 * time.Hour

// FreshnessTracker remembers when each symbol was first observed in this
// process. It is safe for concurrent use.
type FreshnessTracker struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	firstSeen map[string]time.Time
}

// NewFreshnessTracker creates an empty tracker. now may be nil.
func NewFreshnessTracker(window time.Duration, now func() time.Time) *FreshnessTracker {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now == nil {
		now = time.Now
	}
	return &FreshnessTracker{
		window:    window,
		now:       now,
		firstSeen: make(map[string]time.Time),
	}
}

// IsFresh records the first observation of symbol and reports whether it was
// first seen less than the window ago. A never-seen symbol is always fresh.
func (f *FreshnessTracker) IsFresh(symbol string) bool {
	key := models.NormalizeSymbol(symbol)
	if key == "" {
		return false
	}

	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	first, ok := f.firstSeen[key]
	if !ok {
		f.firstSeen[key] = now
		return true
	}
	return now.Sub(first) < f.window
}

// Len returns the number of tracked symbols.
func (f *FreshnessTracker) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.firstSeen)
}
