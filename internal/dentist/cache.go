package dentist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache holds dentist profiles for a bounded time. Write paths must call
// Invalidate for every dentist they touch.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*Dentist, bool)
	Set(ctx context.Context, d *Dentist)
	Invalidate(ctx context.Context, id uuid.UUID)
}

type cacheEntry struct {
	dentist  Dentist
	storedAt time.Time
}

// MemoryCache is a per-process Cache with an injected clock.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]cacheEntry
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, id uuid.UUID) (*Dentist, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, id)
		return nil, false
	}
	d := e.dentist.clone()
	return &d, true
}

func (c *MemoryCache) Set(_ context.Context, d *Dentist) {
	if d == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[d.ID] = cacheEntry{dentist: d.clone(), storedAt: c.now()}
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
