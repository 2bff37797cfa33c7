// Package ratelimit counts attempts per key in fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more attempt for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type window struct {
	count int
	start time.Time
}

// MemoryLimiter is a fixed-window limiter kept in process memory. Expired
// windows are dropped by Allow at most once per period, so the map holds only
// keys seen in the last two periods.
type MemoryLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	rate       int
	period     time.Duration
	now        func() time.Time
	lastPruned time.Time
}

// NewMemoryLimiter allows rate attempts per key in each period. rate <= 0
// disables limiting.
func NewMemoryLimiter(rate int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		rate:    rate,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rate <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPruned) >= l.period {
		l.prune(now)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.rate, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Prune drops windows that ended before now.
func (l *MemoryLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
}

func (l *MemoryLimiter) prune(now time.Time) {
	l.lastPruned = now
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.period {
			delete(l.windows, k)
		}
	}
}
