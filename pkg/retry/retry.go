// Package retry provides exponential backoff with jitter for transient
// failures, mainly around exchange API calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff schedule:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) +/- jitter.
type Config struct {
	// MaxRetries is the total number of attempts, including the first.
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor in [0,1] randomises each delay to avoid lockstep
	// retries against the same endpoint.
	JitterFactor float64

	// RetryIf decides whether an error is worth retrying. Nil retries
	// every error.
	RetryIf func(error) bool

	// OnRetry runs before each retry, typically to log the attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits most read-only API calls: 4 attempts at
// 100ms, 200ms, 400ms plus jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// AggressiveConfig is for order placement, where giving up is expensive:
// 6 attempts starting at 50ms.
func AggressiveConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs operation until it succeeds, the attempts are exhausted, or the
// context is cancelled. It returns the last operation error.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}
