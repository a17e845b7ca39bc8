package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	hits         int
	windowEnd    time.Time
	blockedUntil time.Time
}

// MemoryWindow keeps counters in process memory. Counters are not shared
// between replicas; use RedisWindow for that.
type MemoryWindow struct {
	policy Policy
	now    func() time.Time

	mu        sync.Mutex
	counters  map[string]*counter
	nextSweep time.Time
}

// MemoryOption configures a MemoryWindow.
type MemoryOption func(*MemoryWindow)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *MemoryWindow) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemoryWindow builds an in-process window for policy.
func NewMemoryWindow(policy Policy, opts ...MemoryOption) (*MemoryWindow, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	m := &MemoryWindow{
		policy:   policy,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *MemoryWindow) Hit(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)

	c, ok := m.counters[key]
	if !ok {
		c = &counter{}
		m.counters[key] = c
	}
	if c.blockedUntil.After(now) {
		return denied(m.policy, now, c.blockedUntil.Sub(now)), nil
	}
	if !c.windowEnd.After(now) {
		c.hits = 0
		c.windowEnd = now.Add(m.policy.Window)
	}
	c.hits++
	if c.hits > m.policy.Limit {
		retry := c.windowEnd.Sub(now)
		if m.policy.Block > 0 {
			retry = m.policy.Block
			c.blockedUntil = now.Add(retry)
			c.hits = 0
			c.windowEnd = time.Time{}
		}
		return denied(m.policy, now, retry), nil
	}
	return Decision{
		Allowed:   true,
		Limit:     m.policy.Limit,
		Remaining: m.policy.Limit - c.hits,
		Reset:     c.windowEnd,
	}, nil
}

// Len returns the number of tracked keys.
func (m *MemoryWindow) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// sweepLocked drops idle counters at most once per window.
func (m *MemoryWindow) sweepLocked(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for key, c := range m.counters {
		if !c.windowEnd.After(now) && !c.blockedUntil.After(now) {
			delete(m.counters, key)
		}
	}
	m.nextSweep = now.Add(m.policy.Window)
}
