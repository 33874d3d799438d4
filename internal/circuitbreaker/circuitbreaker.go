// Package circuitbreaker short-circuits dispatches to upstream hosts that
// keep failing.
//
//   - Closed: requests pass and consecutive failures are counted.
//   - Open: requests fail immediately until the cooldown elapses.
//   - HalfOpen: a single trial request is let through to test recovery.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the state of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while a host's breaker rejects requests.
type ErrCircuitOpen struct {
	Host    string
	LastErr string
	RetryIn time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("upstream %s is unavailable after repeated failures (last: %s); retrying in %s",
		e.Host, e.LastErr, e.RetryIn.Truncate(time.Second))
}

// Stats is a snapshot of one breaker.
type Stats struct {
	State            string `json:"state"`
	ConsecutiveFails int    `json:"consecutive_failures"`
	TotalFailures    int64  `json:"total_failures"`
	TotalSuccesses   int64  `json:"total_successes"`
	LastFailureError string `json:"last_failure_error,omitempty"`
}

// Breaker guards a single upstream host.
type Breaker struct {
	mu sync.Mutex

	host      string
	threshold int
	cooldown  time.Duration

	state            State
	probing          bool
	consecutiveFails int
	totalFailures    int64
	totalSuccesses   int64
	lastErr          string
	openedAt         time.Time

	nowFunc func() time.Time
}

// New returns a breaker that opens after threshold consecutive failures.
// A threshold of zero disables it.
func New(host string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{host: host, threshold: threshold, cooldown: cooldown, nowFunc: time.Now}
}

// Allow reports whether a request may be sent.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.threshold <= 0 {
		return nil
	}
	now := b.nowFunc()
	switch b.state {
	case Open:
		if elapsed := now.Sub(b.openedAt); elapsed < b.cooldown {
			return &ErrCircuitOpen{Host: b.host, LastErr: b.lastErr, RetryIn: b.cooldown - elapsed}
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return &ErrCircuitOpen{Host: b.host, LastErr: b.lastErr, RetryIn: b.cooldown}
		}
		b.probing = true
	}
	return nil
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
	b.totalSuccesses++
	b.state = Closed
	b.probing = false
}

// RecordFailure counts a failure and opens the breaker at the threshold
// or when a trial request fails.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails++
	b.totalFailures++
	b.lastErr = "unknown error"
	if err != nil {
		b.lastErr = err.Error()
	}
	if b.threshold <= 0 {
		return
	}
	if b.state == HalfOpen || b.consecutiveFails >= b.threshold {
		b.state = Open
		b.openedAt = b.nowFunc()
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:            b.state.String(),
		ConsecutiveFails: b.consecutiveFails,
		TotalFailures:    b.totalFailures,
		TotalSuccesses:   b.totalSuccesses,
		LastFailureError: b.lastErr,
	}
}

// Registry keeps one breaker per host.
type Registry struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{threshold: threshold, cooldown: cooldown, breakers: map[string]*Breaker{}}
}

// For returns the breaker of host, creating it on first use.
func (r *Registry) For(host string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[host]
	if !ok {
		b = New(host, r.threshold, r.cooldown)
		r.breakers[host] = b
	}
	return b
}

// Stats returns a snapshot of every breaker keyed by host.
func (r *Registry) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.breakers))
	for host, b := range r.breakers {
		out[host] = b.Stats()
	}
	return out
}
