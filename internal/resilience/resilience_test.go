package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-discovery/internal/config"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid keyword")))
	assert.True(t, IsTransient(&TransientError{Err: errors.New("x")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 300*time.Millisecond, b.Delay(3))

	b.Jitter = 0.5
	for range 50 {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	transient := &TransientError{Err: errors.New("503")}

	require.NoError(t, b.Allow())
	b.Record(transient)
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(transient)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow())
	// Only one trial call at a time.
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	b.Record(errors.New("400 bad request"))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ZeroThresholdDisabled(t *testing.T) {
	b := NewBreaker(0, 0)
	for range 10 {
		b.Record(&TransientError{Err: errors.New("x")})
	}
	assert.NoError(t, b.Allow())
}

func TestBreakers_Snapshot(t *testing.T) {
	r := NewBreakers(1, time.Minute)
	r.For("dataforseo").Record(&TransientError{Err: errors.New("x")})
	_ = r.For("search_console")

	assert.Same(t, r.For("dataforseo"), r.For("dataforseo"))
	assert.Equal(t, map[string]string{"dataforseo": "open", "search_console": "closed"}, r.Snapshot())
}

func TestCall_RetriesTransient(t *testing.T) {
	g := NewGuard(NewBreakers(10, time.Minute), Backoff{Attempts: 3})
	g.sleep = noSleep

	calls := 0
	val, err := Call(context.Background(), g, "dataforseo", "suggest", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &TransientError{Err: errors.New("429"), StatusCode: 429}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestCall_PermanentErrorNotRetried(t *testing.T) {
	g := NewGuard(nil, Backoff{Attempts: 5})
	g.sleep = noSleep

	calls := 0
	_, err := Call(context.Background(), g, "dataforseo", "suggest", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid location")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCall_DefaultsToSingleAttempt(t *testing.T) {
	g := FromConfig(config.RetryConfig{MaxAttempts: 1}, config.CircuitConfig{})
	g.sleep = noSleep

	calls := 0
	_, err := Call(context.Background(), g, "p", "op", func(context.Context) (int, error) {
		calls++
		return 0, &TransientError{Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCall_OpenBreakerShortCircuits(t *testing.T) {
	g := NewGuard(NewBreakers(1, time.Hour), Backoff{Attempts: 1})

	_, err := Call(context.Background(), g, "p", "op", func(context.Context) (int, error) {
		return 0, &TransientError{Err: errors.New("503")}
	})
	require.Error(t, err)

	called := false
	_, err = Call(context.Background(), g, "p", "op", func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, "open", g.Breakers().Snapshot()["p"])
}

func TestCall_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGuard(nil, Backoff{Attempts: 5})
	g.sleep = noSleep

	calls := 0
	_, err := Call(ctx, g, "p", "op", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &TransientError{Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCall_NilGuard(t *testing.T) {
	val, err := Call(context.Background(), nil, "p", "op", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, val)
}
