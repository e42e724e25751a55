// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Remaining is how many more requests the window accepts.
	Remaining int
	// RetryAfter is the time until the window resets. Set when not allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config is the window shared by all limiters.
type Config struct {
	Requests int
	Window   time.Duration
	// MaxKeys caps the keys Memory tracks. Redis expires keys itself.
	MaxKeys int
}

func decide(cfg Config, count int, resetIn time.Duration) Decision {
	if count > cfg.Requests {
		if resetIn <= 0 {
			resetIn = cfg.Window
		}
		return Decision{Allowed: false, RetryAfter: resetIn}
	}
	return Decision{Allowed: true, Remaining: cfg.Requests - count}
}

// DefaultMaxKeys bounds Memory when Config.MaxKeys is zero.
const DefaultMaxKeys = 10_000

type window struct {
	key   string
	start time.Time
	count int
}

// Memory is an in-process limiter. Counts are lost on restart and are not
// shared between instances. At most MaxKeys windows are kept; once full, the
// oldest window is dropped for a new key.
type Memory struct {
	cfg     Config
	maxKeys int
	now     func() time.Time

	mu      sync.Mutex
	windows map[string]*list.Element
	order   *list.List // *window, oldest start first
}

// NewMemory creates an in-process limiter.
func NewMemory(cfg Config) *Memory {
	limit := cfg.MaxKeys
	if limit <= 0 {
		limit = DefaultMaxKeys
	}
	return &Memory{
		cfg:     cfg,
		maxKeys: limit,
		now:     time.Now,
		windows: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)

	el, ok := m.windows[key]
	switch {
	case !ok:
		if m.order.Len() >= m.maxKeys {
			m.remove(m.order.Front())
		}
		el = m.order.PushBack(&window{key: key, start: now})
		m.windows[key] = el
	case now.Sub(el.Value.(*window).start) >= m.cfg.Window:
		w := el.Value.(*window)
		w.start, w.count = now, 0
		m.order.MoveToBack(el)
	}

	w := el.Value.(*window)
	w.count++
	return decide(m.cfg, w.count, w.start.Add(m.cfg.Window).Sub(now)), nil
}

// prune drops expired windows from the front of the queue.
func (m *Memory) prune(now time.Time) {
	for el := m.order.Front(); el != nil; el = m.order.Front() {
		if now.Sub(el.Value.(*window).start) < m.cfg.Window {
			return
		}
		m.remove(el)
	}
}

func (m *Memory) remove(el *list.Element) {
	delete(m.windows, el.Value.(*window).key)
	m.order.Remove(el)
}
