package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the per-capability key count above which expired
// windows are purged on the next increment.
const sweepThreshold = 10000

type window struct {
	count   int64
	resetAt time.Time
}

type bucket struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryCounter keeps fixed-window counts in process memory. Each
// capability has its own bucket and lock.
type MemoryCounter struct {
	now func() time.Time

	mu      sync.Mutex
	buckets map[Capability]*bucket
}

func NewMemoryCounter() *MemoryCounter {
	return NewMemoryCounterWithClock(time.Now)
}

func NewMemoryCounterWithClock(now func() time.Time) *MemoryCounter {
	return &MemoryCounter{
		now:     now,
		buckets: make(map[Capability]*bucket),
	}
}

func (m *MemoryCounter) bucketFor(capability Capability) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[capability]
	if !ok {
		b = &bucket{windows: make(map[string]*window)}
		m.buckets[capability] = b
	}
	return b
}

func (m *MemoryCounter) Incr(_ context.Context, capability Capability, key string, length time.Duration) (int64, time.Duration, error) {
	b := m.bucketFor(capability)
	now := m.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.windows) > sweepThreshold {
		for k, w := range b.windows {
			if !now.Before(w.resetAt) {
				delete(b.windows, k)
			}
		}
	}

	w, ok := b.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		b.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt.Sub(now), nil
}
