package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/kronos-go/kronos/kerrors"
)

func transportFailure() error {
	return &kerrors.TransportError{Op: "POST /1.0/events/get", Status: 503}
}

func TestCeilingBoundsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	c := New("get", Config{})
	_, err := Run(context.Background(), c, func(context.Context) (int, error) {
		calls++
		return 0, transportFailure()
	})

	require.Error(t, err)
	assert.Equal(t, DefaultCeiling, calls)
	assert.Equal(t, DefaultCeiling, c.Attempts())
	assert.Equal(t, StateExhausted, c.State())
	assert.True(t, IsExhausted(err))
	assert.True(t, kerrors.IsTransport(err), "last failure must stay reachable")
	assert.Equal(t, 503, kerrors.StatusCode(err))

	// A settled controller never issues another attempt.
	_, err = Run(context.Background(), c, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	assert.True(t, kerrors.IsProtocolMisuse(err))
	assert.Equal(t, DefaultCeiling, calls)
}

func TestSurfacesLastErrorOnly(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), "get", Config{Ceiling: 3}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &kerrors.TransportError{Op: "op", Status: 500}
		}
		return "", &kerrors.DecodeError{Line: "{", Err: errors.New("unexpected end")}
	})
	assert.Equal(t, 3, calls)
	assert.True(t, kerrors.IsDecode(err))
	assert.Zero(t, kerrors.StatusCode(err))
}

func TestSuccessAfterFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	c := New("streams", Config{Ceiling: 5})
	got, err := Run(context.Background(), c, func(context.Context) (string, error) {
		calls++
		if calls < 4 {
			return "", transportFailure()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, c.Attempts())
	assert.Equal(t, StateSucceeded, c.State())
}

func TestMisuseIsNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	c := New("get", Config{})
	_, err := Run(context.Background(), c, func(context.Context) (int, error) {
		calls++
		return 0, kerrors.Misuse("bad call")
	})
	assert.True(t, kerrors.IsProtocolMisuse(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateAborted, c.State())
}

func TestCancelledContextStopsRetries(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, "get", Config{Ceiling: 10}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, transportFailure()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	_, err := Do(ctx, "get", Config{Ceiling: 10, Delay: time.Hour}, func(context.Context) (int, error) {
		calls++
		return 0, transportFailure()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestNextDelayIsCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{Delay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}.normalized()
	d := cfg.Delay
	d = nextDelay(d, cfg)
	assert.Equal(t, 2*time.Second, d)
	d = nextDelay(d, cfg)
	assert.Equal(t, 3*time.Second, d)
}

func TestJitterStaysWithinQuarter(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		d := withJitter(100*time.Millisecond, true)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
	assert.Equal(t, time.Second, withJitter(time.Second, false))
}
