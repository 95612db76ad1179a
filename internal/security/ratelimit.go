package security

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OperationClass partitions rate-limit windows. Creation limits are keyed
// by owner, access limits by origin IP.
type OperationClass string

const (
	ClassShareCreate OperationClass = "SHARE_CREATE"
	ClassShareAccess OperationClass = "SHARE_ACCESS"
)

// Limit is the per-class budget: at most Max calls per Window.
type Limit struct {
	Max    int64
	Window time.Duration
}

// CounterStore is the keyed fixed-window counter backing the rate
// limiter. Incr atomically bumps the counter for the key's current window
// and returns the new count; a fresh or expired window restarts at 1.
// Reset wipes all counters (administrative clear).
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context) error
}

// RateLimiter applies per-class fixed-window limits over a CounterStore.
// Every Check consumes quota whether or not the overall request is later
// denied further down the pipeline; denied attempts still count.
type RateLimiter struct {
	counters CounterStore
	limits   map[OperationClass]Limit
}

func NewRateLimiter(counters CounterStore, limits map[OperationClass]Limit) *RateLimiter {
	return &RateLimiter{counters: counters, limits: limits}
}

// Check reads-and-increments the window counter for (class, key) and
// reports whether the call is within the class budget.
func (rl *RateLimiter) Check(ctx context.Context, class OperationClass, key string) (bool, error) {
	limit, ok := rl.limits[class]
	if !ok {
		return false, fmt.Errorf("no limit configured for class %q", class)
	}

	count, err := rl.counters.Incr(ctx, counterKey(class, key), limit.Window)
	if err != nil {
		return false, err
	}
	return count <= limit.Max, nil
}

func counterKey(class OperationClass, key string) string {
	return string(class) + ":" + key
}

// Compile-time interface check
var _ CounterStore = (*MemoryCounters)(nil)

// MemoryCounters keeps window counters in process memory. The map lock is
// held only to fetch or insert a counter; increments serialize on the
// per-key lock so distinct origins do not contend.
type MemoryCounters struct {
	mu       sync.RWMutex
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int64
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (m *MemoryCounters) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.RLock()
	c, ok := m.counters[key]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		c, ok = m.counters[key]
		if !ok {
			c = &windowCounter{}
			m.counters[key] = c
		}
		m.mu.Unlock()
	}

	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= window {
		c.windowStart = now
		c.count = 1
		return 1, nil
	}
	c.count++
	return c.count, nil
}

func (m *MemoryCounters) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]*windowCounter)
	return nil
}
