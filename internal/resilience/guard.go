package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/keyword-discovery/internal/config"
)

// Backoff is the retry schedule. Attempts counts the first call, so 1 means
// no retries.
type Backoff struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Delay returns the wait before retry n (1-based), jittered by ±Jitter.
func (b Backoff) Delay(n int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(initial) * math.Pow(mult, float64(n-1))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Guard wraps provider calls with a breaker and retry schedule.
type Guard struct {
	breakers *Breakers
	backoff  Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGuard creates a Guard.
func NewGuard(breakers *Breakers, backoff Backoff) *Guard {
	if backoff.Attempts <= 0 {
		backoff.Attempts = 1
	}
	return &Guard{breakers: breakers, backoff: backoff, sleep: sleepCtx}
}

// FromConfig builds a Guard from the retry and circuit settings.
func FromConfig(r config.RetryConfig, c config.CircuitConfig) *Guard {
	return NewGuard(
		NewBreakers(c.FailureThreshold, time.Duration(c.ResetTimeoutSecs)*time.Second),
		Backoff{
			Attempts:   r.MaxAttempts,
			Initial:    time.Duration(r.InitialBackoffMs) * time.Millisecond,
			Max:        time.Duration(r.MaxBackoffMs) * time.Millisecond,
			Multiplier: r.Multiplier,
			Jitter:     r.JitterFraction,
		},
	)
}

// Breakers exposes the breaker registry for health reporting.
func (g *Guard) Breakers() *Breakers {
	return g.breakers
}

// Call runs fn under the breaker for provider, retrying transient failures
// per the guard's backoff. A nil guard calls fn directly.
func Call[T any](ctx context.Context, g *Guard, provider, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	var (
		zero T
		b    *Breaker
	)
	if g.breakers != nil {
		b = g.breakers.For(provider)
	}

	var lastErr error
	for attempt := 1; attempt <= g.backoff.Attempts; attempt++ {
		if err := b.Allow(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		val, err := fn(ctx)
		b.Record(err)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == g.backoff.Attempts {
			break
		}

		delay := g.backoff.Delay(attempt)
		zap.L().Warn("retrying provider call",
			zap.String("provider", provider),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if serr := g.sleep(ctx, delay); serr != nil {
			break
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
