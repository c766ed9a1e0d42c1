// Package ratelimit implements a fixed-window request limiter keyed by
// source address.
//
// The window is a fixed interval (per-minute by default): the counter for a
// source resets at each window boundary rather than sliding. State is held
// in-process only; under a multi-process deployment each process enforces the
// limit independently.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per source address within fixed windows.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time

	windows map[string]*entry
}

type entry struct {
	start time.Time
	count int
}

// New builds a limiter allowing limit requests per window per source.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*entry),
	}
}

// Allow records a request from source and reports whether it is within the
// limit. When rejected, retryAfter is the time remaining until the window
// resets.
func (l *Limiter) Allow(source string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.windows[source]
	if !ok || now.Sub(e.start) >= l.window {
		l.windows[source] = &entry{start: now, count: 1}
		l.evictStale(now)
		return true, 0
	}

	if e.count >= l.limit {
		return false, e.start.Add(l.window).Sub(now)
	}
	e.count++
	return true, 0
}

// evictStale drops expired windows so the map does not grow with every
// address ever seen. Called with the lock held.
func (l *Limiter) evictStale(now time.Time) {
	for source, e := range l.windows {
		if now.Sub(e.start) >= l.window {
			delete(l.windows, source)
		}
	}
}
