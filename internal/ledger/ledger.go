// Package ledger tracks which provider message IDs have already been merged
// into conversation state, plus the poll cursor watermark. The ledger is
// what makes re-fetching a window safe: a message ID is merged at most once
// no matter how many poll cycles observe it.
package ledger

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Ledger is the dedup set plus cursor used by the message poller.
type Ledger interface {
	// Seen reports whether the provider message ID was already merged.
	Seen(id string) bool
	// Mark records the provider message ID as merged.
	Mark(id string) error
	// Cursor returns the lower-bound timestamp for the next poll query.
	Cursor() time.Time
	// SetCursor advances the watermark. The poller only moves it forward.
	SetCursor(t time.Time) error
	// Close releases any backing resources.
	Close() error
}

// seenTTL bounds how long the in-memory ledger remembers a message ID.
// The provider query window never reaches further back than the cursor,
// so a day of retention is ample.
const seenTTL = 24 * time.Hour

// Memory is a process-lifetime Ledger. Dedup state is lost on restart.
type Memory struct {
	seen *ttlcache.Cache[string, struct{}]

	mu     sync.Mutex
	cursor time.Time
}

// NewMemory creates an in-memory ledger with the given initial cursor.
func NewMemory(cursor time.Time) *Memory {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](seenTTL),
	)
	go cache.Start()
	return &Memory{seen: cache, cursor: cursor}
}

// Seen reports whether id was already merged.
func (m *Memory) Seen(id string) bool {
	return m.seen.Has(id)
}

// Mark records id as merged.
func (m *Memory) Mark(id string) error {
	m.seen.Set(id, struct{}{}, ttlcache.DefaultTTL)
	return nil
}

// Cursor returns the current watermark.
func (m *Memory) Cursor() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetCursor advances the watermark.
func (m *Memory) SetCursor(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = t
	return nil
}

// Close stops the TTL eviction loop.
func (m *Memory) Close() error {
	m.seen.Stop()
	return nil
}
