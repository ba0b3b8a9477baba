// Package ratelimit bounds per-client request rates over a sliding window.
// State is process-local; restarting the service resets all windows.
package ratelimit

import (
	"sync"
	"time"
)

const (
	cleanupInterval = 5 * time.Minute

	DefaultLimit  = 20
	DefaultWindow = time.Minute
)

// Result reports one admission decision along with the response metadata the
// HTTP layer exposes.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter tracks request timestamps per client identifier within a trailing
// window. A rejected request is not recorded as consumed.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	clients     map[string][]time.Time
	lastCleanup time.Time
	now         func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:       limit,
		window:      window,
		clients:     make(map[string][]time.Time),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow decides whether a request from client may proceed, recording it when
// admitted.
func (l *Limiter) Allow(client string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeCleanup(now)

	cutoff := now.Add(-l.window)
	recent := pruneBefore(l.clients[client], cutoff)

	if len(recent) >= l.limit {
		l.clients[client] = recent
		return Result{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			RetryAfter: l.window,
			Reset:      recent[0].Add(l.window),
		}
	}

	recent = append(recent, now)
	l.clients[client] = recent
	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(recent),
		Reset:     now.Add(l.window),
	}
}

// maybeCleanup drops clients whose whole window has expired, keeping the map
// from growing without bound across idle clients. Runs inline, at most once
// per cleanupInterval.
func (l *Limiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	cutoff := now.Add(-l.window)
	for client, stamps := range l.clients {
		if len(pruneBefore(stamps, cutoff)) == 0 {
			delete(l.clients, client)
		}
	}
	l.lastCleanup = now
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
