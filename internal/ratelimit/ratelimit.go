// Package ratelimit throttles dispatches to upstream hosts with a token
// bucket and an optional per-minute quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is a token bucket refilled at a steady rate per second, with a
// fixed-window cap on requests per minute.
type Limiter struct {
	perSecond float64
	burst     float64
	perMinute int

	mu          sync.Mutex
	tokens      float64
	lastRefill  time.Time
	windowStart time.Time
	windowCount int

	nowFunc func() time.Time
}

// New returns a limiter. A zero perSecond disables the bucket and a zero
// perMinute disables the quota. burst below one is raised to one.
func New(perSecond float64, burst, perMinute int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		perSecond: perSecond,
		burst:     float64(burst),
		perMinute: perMinute,
		tokens:    float64(burst),
		nowFunc:   time.Now,
	}
	now := l.nowFunc()
	l.lastRefill = now
	l.windowStart = now.Truncate(time.Minute)
	return l
}

// ErrRateLimited reports an exhausted per-minute quota.
type ErrRateLimited struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited (%d requests per minute), retry after %s", e.Limit, e.RetryAfter.Truncate(time.Second))
}

// Wait blocks until a token is available. It returns ErrRateLimited when
// the minute quota is spent and the context error if ctx ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || (l.perSecond == 0 && l.perMinute == 0) {
		return nil
	}
	for {
		wait, err := l.reserve()
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Limiter) reserve() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()

	if l.perMinute > 0 {
		if start := now.Truncate(time.Minute); start != l.windowStart {
			l.windowStart = start
			l.windowCount = 0
		}
		if l.windowCount >= l.perMinute {
			return 0, &ErrRateLimited{Limit: l.perMinute, RetryAfter: l.windowStart.Add(time.Minute).Sub(now)}
		}
	}

	if l.perSecond > 0 {
		l.tokens += now.Sub(l.lastRefill).Seconds() * l.perSecond
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		l.lastRefill = now
		if l.tokens < 1 {
			wait := time.Duration((1 - l.tokens) / l.perSecond * float64(time.Second))
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
			return wait, nil
		}
		l.tokens--
	}
	l.windowCount++
	return 0, nil
}

// Stats is a snapshot of the limiter.
type Stats struct {
	PerSecond       float64 `json:"per_second"`
	Burst           int     `json:"burst"`
	TokensLeft      float64 `json:"tokens_left"`
	MinuteRemaining int     `json:"minute_remaining"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{PerSecond: l.perSecond, Burst: int(l.burst), TokensLeft: l.tokens, MinuteRemaining: -1}
	if l.perMinute > 0 {
		s.MinuteRemaining = l.perMinute - l.windowCount
		if l.nowFunc().Truncate(time.Minute) != l.windowStart {
			s.MinuteRemaining = l.perMinute
		}
	}
	return s
}

// Registry hands out one limiter per upstream host.
type Registry struct {
	perSecond float64
	burst     int
	perMinute int

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry returns a registry whose limiters share one configuration.
func NewRegistry(perSecond float64, burst, perMinute int) *Registry {
	return &Registry{perSecond: perSecond, burst: burst, perMinute: perMinute, limiters: map[string]*Limiter{}}
}

// For returns the limiter of host, creating it on first use.
func (r *Registry) For(host string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[host]
	if !ok {
		l = New(r.perSecond, r.burst, r.perMinute)
		r.limiters[host] = l
	}
	return l
}
