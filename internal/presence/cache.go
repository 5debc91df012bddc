package presence

import (
	"sync"
	"time"
)

// Cache holds the latest presence state for concurrent readers.
// Writes replace state and timestamp together; nothing blocking runs under the lock.
type Cache struct {
	mu    sync.RWMutex
	entry Entry
	now   func() time.Time
}

// NewCache returns a cache holding Unknown, stamped with the current time.
func NewCache() *Cache {
	return newCacheWithClock(time.Now)
}

func newCacheWithClock(now func() time.Time) *Cache {
	return &Cache{
		entry: Entry{State: Unknown{}, ComputedAt: now()},
		now:   now,
	}
}

// Read returns the cached state.
func (c *Cache) Read() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry.State
}

// Entry returns the cached state and the time it was computed.
func (c *Cache) Entry() Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry
}

// Store replaces the cached state and stamps it with the current time.
// The stamp is strictly later than the previous one even if the clock has not moved.
func (c *Cache) Store(s State) Entry {
	if s == nil {
		s = Unknown{}
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.After(c.entry.ComputedAt) {
		now = c.entry.ComputedAt.Add(time.Nanosecond)
	}
	c.entry = Entry{State: s, ComputedAt: now}
	return c.entry
}
