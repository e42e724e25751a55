package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// ErrInvalidConfig is wrapped by every Normalize failure.
var ErrInvalidConfig = errors.New("retry: invalid config")

// Reasons reported by RetriesExceededError.
const (
	ReasonAttempts = "max attempts exceeded"
	ReasonElapsed  = "max elapsed time exceeded"
)

// Config describes a backoff policy. MaxAttempts counts the first call.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxElapsedTime caps the whole run; zero means no cap.
	MaxElapsedTime time.Duration
	Multiplier     float64
	// Jitter stretches each wait to a random point in [d, 1.5d).
	Jitter bool
	Rand   *rand.Rand

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
	// NextDelay may replace the computed wait for a failure. Zero keeps the
	// computed value; false ends the run with that failure.
	NextDelay func(attempt int, err error) (time.Duration, bool)

	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig is three quick attempts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize fills defaults and rejects inconsistent settings.
func (c *Config) Normalize() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: MaxAttempts=%d", ErrInvalidConfig, c.MaxAttempts)
	case c.InitialDelay <= 0:
		return fmt.Errorf("%w: InitialDelay=%s", ErrInvalidConfig, c.InitialDelay)
	case c.MaxElapsedTime < 0:
		return fmt.Errorf("%w: MaxElapsedTime=%s", ErrInvalidConfig, c.MaxElapsedTime)
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return fmt.Errorf("%w: InitialDelay %s above MaxDelay %s", ErrInvalidConfig, c.InitialDelay, c.MaxDelay)
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: Multiplier=%g", ErrInvalidConfig, c.Multiplier)
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// RetryableFunc is one attempt.
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc reports whether a failure deserves another attempt.
type IsRetryableFunc func(err error) bool

// RetriesExceededError ends a run that kept failing with retryable errors.
type RetriesExceededError struct {
	LastError     error
	Attempts      int
	TotalDuration time.Duration
	Reason        string
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %s after %d attempts in %s: %v", e.Reason, e.Attempts, e.TotalDuration, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error { return e.LastError }

var transientErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ENETDOWN,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
}

// DefaultRetryable accepts timeouts, dropped connections and temporary DNS
// failures. Cancellation is never retried.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	for _, target := range []error{context.DeadlineExceeded, io.EOF, io.ErrUnexpectedEOF, net.ErrClosed} {
		if errors.Is(err, target) {
			return true
		}
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do calls fn until it succeeds, returns a failure isRetryable rejects, or
// the policy runs out. A nil isRetryable means DefaultRetryable.
func Do(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return err
	}
	if isRetryable == nil {
		isRetryable = DefaultRetryable
	}

	start := cfg.Now()
	exceeded := func(err error, attempts int, reason string) error {
		return &RetriesExceededError{LastError: err, Attempts: attempts, TotalDuration: cfg.Now().Sub(start), Reason: reason}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case !isRetryable(err):
			return err
		case attempt >= cfg.MaxAttempts:
			return exceeded(err, attempt, ReasonAttempts)
		}

		wait, ok := cfg.wait(attempt, err)
		if !ok {
			return err
		}
		if cfg.MaxElapsedTime > 0 && cfg.Now().Sub(start)+wait > cfg.MaxElapsedTime {
			return exceeded(err, attempt, ReasonElapsed)
		}
		if deadline, ok := ctx.Deadline(); ok {
			wait = min(wait, time.Until(deadline))
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.After(wait):
		}
	}
}

// wait picks the pause after a failed attempt; false stops the run.
func (c Config) wait(attempt int, err error) (time.Duration, bool) {
	d := c.backoff(attempt)
	if c.NextDelay != nil {
		hint, ok := c.NextDelay(attempt, err)
		if !ok {
			return 0, false
		}
		if hint > 0 {
			d = hint
		}
	}
	if c.Jitter && d > 1 {
		d = min(d+time.Duration(c.Rand.Int63n(int64(d/2))), c.MaxDelay)
	}
	return d, true
}

// backoff is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c Config) backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for range attempt - 1 {
		d *= c.Multiplier
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return min(time.Duration(d), c.MaxDelay)
}
