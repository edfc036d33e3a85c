package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter throttles requests per target domain: a randomized minimum spacing
// between consecutive requests (fixed intervals are an automation tell) and a
// hard cap per rolling hour. Domains never block each other.
type Limiter struct {
	minSpacing time.Duration
	maxSpacing time.Duration
	hourlyCap  int

	mu      sync.Mutex
	domains map[string]*domainState
}

// domainState is only ever touched under its own mutex, so concurrent
// acquires for different domains proceed independently.
type domainState struct {
	mu            sync.Mutex
	lastRequestAt time.Time
	windowCount   int
	windowResetAt time.Time
}

func New(minSpacing, maxSpacing time.Duration, hourlyCap int) *Limiter {
	if maxSpacing < minSpacing {
		maxSpacing = minSpacing
	}
	return &Limiter{
		minSpacing: minSpacing,
		maxSpacing: maxSpacing,
		hourlyCap:  hourlyCap,
		domains:    make(map[string]*domainState),
	}
}

func (l *Limiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{}
		l.domains[domain] = st
	}
	return st
}

// Acquire blocks until a request to domain is allowed, honoring ctx
// cancellation. The wait is the spacing delay, or the remainder of the
// rolling hour once the cap is hit. The window reset is lazy: checked here,
// never by a background timer, so idle domains cost nothing.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	for {
		wait := l.reserve(domain)
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// reserve either books a request slot for the domain (returning 0) or
// returns how long the caller must wait before trying again.
func (l *Limiter) reserve(domain string) time.Duration {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	if st.windowResetAt.IsZero() || !now.Before(st.windowResetAt) {
		st.windowCount = 0
		st.windowResetAt = now.Add(time.Hour)
	}
	if l.hourlyCap > 0 && st.windowCount >= l.hourlyCap {
		return st.windowResetAt.Sub(now)
	}

	spacing := l.minSpacing
	if l.maxSpacing > l.minSpacing {
		spacing += time.Duration(rand.Int63n(int64(l.maxSpacing - l.minSpacing)))
	}
	if elapsed := now.Sub(st.lastRequestAt); !st.lastRequestAt.IsZero() && elapsed < spacing {
		return spacing - elapsed
	}

	st.lastRequestAt = now
	st.windowCount++
	return 0
}

// Remaining reports how many requests are left in the current hour window
// for the domain, for health reporting.
func (l *Limiter) Remaining(domain string) int {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	if l.hourlyCap <= 0 {
		return -1
	}
	if st.windowResetAt.IsZero() || !time.Now().Before(st.windowResetAt) {
		return l.hourlyCap
	}
	left := l.hourlyCap - st.windowCount
	if left < 0 {
		return 0
	}
	return left
}
