// Package ratelimit implements per-client-address admission control using
// fixed windows held in process memory. It is a blunt, cheap filter that
// runs before any entitlement logic and knows nothing about plan or
// identity.
//
// State is not persisted and not shared across processes: a restart resets
// every window, and horizontal scaling fragments each budget per instance.
// Both are accepted scoping limitations.
package ratelimit

import (
	"sync"
	"time"

	"copyforge/internal/types"
)

// Policy is a named rate-limit rule. Distinct policies hold independent
// budgets for the same client address.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
	// CountFailuresOnly policies (auth attempts) admit every request and
	// only advance the counter when the caller reports a failure, so
	// well-behaved clients are never throttled by their own successes.
	CountFailuresOnly bool
}

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the wait until the window resets; meaningful only when
	// Allowed is false.
	RetryAfter time.Duration
}

// window is one fixed counting window for a (policy, address) pair.
type window struct {
	start time.Time
	count int
}

// Limiter holds the in-memory windows for every policy. Safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   types.Clock
}

// NewLimiter creates a limiter. A nil clock defaults to the real clock;
// tests inject a fake to step through window boundaries.
func NewLimiter(clock types.Clock) *Limiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Limiter{
		windows: make(map[string]*window),
		clock:   clock,
	}
}

// key builds the map key for a (policy, address) pair.
func key(p Policy, addr string) string {
	return p.Name + "|" + addr
}

// Allow checks (and for normal policies, consumes) one request against the
// policy's window for the given client address. Once the window has elapsed
// past its start, the counter resets and the request opens a fresh window.
func (l *Limiter) Allow(p Policy, addr string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	k := key(p, addr)

	w, ok := l.windows[k]
	if !ok || now.Sub(w.start) >= p.Window {
		w = &window{start: now}
		l.windows[k] = w
	}

	resetAt := w.start.Add(p.Window)

	if w.count >= p.Max {
		return Result{
			Allowed:    false,
			Limit:      p.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	if !p.CountFailuresOnly {
		w.count++
	}

	remaining := p.Max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   true,
		Limit:     p.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// RecordFailure advances the counter for a CountFailuresOnly policy after
// the request has been observed to fail. No-op for normal policies, which
// count on admission.
func (l *Limiter) RecordFailure(p Policy, addr string) {
	if !p.CountFailuresOnly {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	k := key(p, addr)

	w, ok := l.windows[k]
	if !ok || now.Sub(w.start) >= p.Window {
		w = &window{start: now}
		l.windows[k] = w
	}
	w.count++
}

// Prune drops windows that expired before the current instant. Called
// opportunistically; correctness never depends on it because Allow resets
// expired windows on contact.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for k, w := range l.windows {
		// Window durations vary by policy; anything older than the longest
		// plausible window is stale. One hour covers every defined policy.
		if now.Sub(w.start) >= time.Hour {
			delete(l.windows, k)
		}
	}
}
