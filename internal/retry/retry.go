// Package retry re-issues failed Kronos reads up to a fixed ceiling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/metrics"
	"github.com/oremus-labs/kronos-go/kronos/kerrors"
)

// DefaultCeiling is the number of attempts made before giving up.
const DefaultCeiling = 10

// Config controls attempts and backoff.
type Config struct {
	Ceiling    int           // total attempts; 0 means DefaultCeiling
	Delay      time.Duration // wait before the second attempt; 0 retries immediately
	MaxDelay   time.Duration // cap for the growing delay; 0 means 5s
	Multiplier float64       // delay growth per attempt; 0 means 2
	Jitter     bool          // add up to 25% random delay
}

// DefaultConfig returns the client's default retry policy.
func DefaultConfig() Config {
	return Config{
		Ceiling:    DefaultCeiling,
		Delay:      100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

func (c Config) normalized() Config {
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// State is the controller's position.
type State int

const (
	StateAttempting State = iota
	StateSucceeded
	StateExhausted
	// StateAborted: a failure that must not be retried ended the operation.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ExhaustedError is returned once the ceiling is reached. It wraps the last
// failure only.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Controller tracks one logical operation across its attempts. A Controller
// is single-use.
type Controller struct {
	op  string
	cfg Config

	// Retryable classifies failures; defaults to kerrors.Retryable.
	Retryable func(error) bool

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	delay    time.Duration
}

// New returns a controller for op ("get", "streams", ...).
func New(op string, cfg Config) *Controller {
	cfg = cfg.normalized()
	return &Controller{op: op, cfg: cfg, Retryable: kerrors.Retryable, delay: cfg.Delay}
}

// Attempts is the number of failed attempts so far.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastErr returns the most recent failure.
func (c *Controller) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Run calls fn until it succeeds, fails with an error that is not
// retryable, or the ceiling is reached. The successful result is returned
// unmodified.
func Run[T any](ctx context.Context, c *Controller, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.State() != StateAttempting {
		return zero, kerrors.Misuse("retry controller for %s reused after it settled", c.op)
	}
	result, err := attempt(ctx, c, fn)
	if err != nil {
		return zero, err
	}
	c.settle(StateSucceeded, nil)
	return result, nil
}

// attempt loops until fn succeeds or retryAfter gives up. It leaves the
// controller attempting on success.
func attempt[T any](ctx context.Context, c *Controller, fn func(context.Context) (T, error)) (T, error) {
	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if err := c.retryAfter(ctx, err); err != nil {
			var zero T
			return zero, err
		}
	}
}

// retryAfter counts the failure err and waits out the backoff. A nil return
// means another attempt may be made; otherwise the controller has settled
// and the returned error ends the operation.
func (c *Controller) retryAfter(ctx context.Context, err error) error {
	if ctx.Err() != nil || !c.Retryable(err) {
		c.settle(StateAborted, err)
		return err
	}

	attempts, exhausted := c.fail(err)
	metrics.ObserveRetry(c.op, exhausted)
	if exhausted {
		logutil.Error("kronos retries exhausted", err, map[string]interface{}{
			"op":       c.op,
			"attempts": attempts,
		})
		return &ExhaustedError{Op: c.op, Attempts: attempts, Err: err}
	}
	logutil.Warn("kronos attempt failed, retrying", map[string]interface{}{
		"op":      c.op,
		"attempt": attempts,
		"ceiling": c.cfg.Ceiling,
		"error":   err.Error(),
	})

	if delay := c.nextWait(); delay > 0 {
		if err := sleep(ctx, withJitter(delay, c.cfg.Jitter)); err != nil {
			c.settle(StateAborted, err)
			return fmt.Errorf("%s: retry cancelled after %d attempts: %w", c.op, attempts, err)
		}
	}
	return nil
}

// Do is Run with a fresh controller.
func Do[T any](ctx context.Context, op string, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	return Run(ctx, New(op, cfg), fn)
}

func (c *Controller) fail(err error) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	c.lastErr = err
	if c.attempts >= c.cfg.Ceiling {
		c.state = StateExhausted
		return c.attempts, true
	}
	return c.attempts, false
}

// nextWait returns the delay before the next attempt and grows it.
func (c *Controller) nextWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.delay
	if d > 0 {
		c.delay = nextDelay(d, c.cfg)
	}
	return d
}

func (c *Controller) settle(state State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	if err != nil {
		c.lastErr = err
	}
}

func withJitter(d time.Duration, jitter bool) time.Duration {
	if !jitter || d < 4 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}

func nextDelay(d time.Duration, cfg Config) time.Duration {
	next := float64(d) * cfg.Multiplier
	if next > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(next)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err came from a controller that hit its
// ceiling.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
