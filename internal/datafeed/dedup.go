package datafeed

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// dedupWindow is how long an event key suppresses duplicates across feeds.
const dedupWindow = 90 * time.Second

// Deduper suppresses the same event observed by more than one feed inside
// the window. Stale entries are garbage-collected on every call.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduper creates an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]time.Time)}
}

// Key canonicalizes an event across feeds.
func (d *Deduper) Key(evt *LiveEvent) string {
	return fmt.Sprintf("%s_%s_%s_%d",
		strings.ToLower(evt.HomeTeam),
		strings.ToLower(evt.AwayTeam),
		evt.EventType,
		evt.Minute,
	)
}

// Seen records the event and reports whether its key was already delivered
// within the window.
func (d *Deduper) Seen(evt *LiveEvent) bool {
	now := time.Now()
	key := d.Key(evt)

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, ts := range d.seen {
		if now.Sub(ts) > dedupWindow {
			delete(d.seen, k)
		}
	}

	if ts, ok := d.seen[key]; ok && now.Sub(ts) <= dedupWindow {
		return true
	}

	d.seen[key] = now

	return false
}
