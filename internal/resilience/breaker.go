// Package resilience guards provider calls with per-provider circuit breakers
// and bounded retries.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is a breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling the provider while its breaker is open.
var ErrOpen = eris.New("provider circuit open")

// Breaker stops calling a provider after Threshold consecutive failures and
// lets one trial call through once Cooldown has elapsed. A zero Threshold
// disables it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. In half-open only one trial call is
// admitted at a time.
func (b *Breaker) Allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.probing = false
	}
	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

// Record feeds a call result back. Only transient failures count; a
// permanent error such as a 400 says nothing about provider health.
func (b *Breaker) Record(err error) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Breakers holds one Breaker per provider name.
type Breakers struct {
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	byName map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	return &Breakers{threshold: threshold, cooldown: cooldown, byName: make(map[string]*Breaker)}
}

// For returns the breaker for provider, creating it on first use.
func (r *Breakers) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byName[provider]
	if !ok {
		b = NewBreaker(r.threshold, r.cooldown)
		r.byName[provider] = b
	}
	return b
}

// Snapshot returns the state of every known breaker, keyed by provider.
func (r *Breakers) Snapshot() map[string]string {
	r.mu.Lock()
	names := make(map[string]*Breaker, len(r.byName))
	for k, v := range r.byName {
		names[k] = v
	}
	r.mu.Unlock()

	out := make(map[string]string, len(names))
	for k, b := range names {
		out[k] = b.State().String()
	}
	return out
}
