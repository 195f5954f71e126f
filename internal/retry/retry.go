// Package retry repeats calls to remote services with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Classified is implemented by errors that know whether another attempt can succeed.
// Errors that do not implement it are retried.
type Classified interface {
	error
	IsRetryable() bool
}

// Config is the backoff schedule. Attempt n (from 0) waits
// InitialDelay * BackoffFactor^n, capped at MaxDelay and spread by +/- JitterFraction.
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64
}

// Backoff returns the wait before retry attempt+1, without jitter.
func (c Config) Backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

func (c Config) wait(attempt int) time.Duration {
	d := c.Backoff(attempt)
	if c.JitterFraction <= 0 {
		return d
	}
	jittered := time.Duration(float64(d) * (1 + c.JitterFraction*(rand.Float64()*2-1)))
	if jittered < 0 {
		return c.InitialDelay
	}
	return jittered
}

// Permanent reports whether err carries a Classified error that rules out another attempt.
func Permanent(err error) bool {
	var c Classified
	return errors.As(err, &c) && !c.IsRetryable()
}

// Do calls fn until it succeeds, returns a permanent error, ctx ends or MaxRetries retries
// have been spent. The last error is returned.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if Permanent(err) || attempt >= cfg.MaxRetries {
			return zero, err
		}

		timer := time.NewTimer(cfg.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
