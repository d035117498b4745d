// Package retry wraps storage operations with bounded retry for rate-limited
// errors, using exponential backoff with uniform random jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// DefaultAttempts is the attempt limit used when no override is given.
const DefaultAttempts = 5

// maxBackoff caps the jitter window for any single sleep.
const maxBackoff = 32 * time.Second

type options struct {
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(max time.Duration) time.Duration
}

// Option configures a Do call.
type Option func(*options)

// WithAttempts sets the maximum number of attempts. Values below 1 are
// treated as 1.
func WithAttempts(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.attempts = n
	}
}

// WithSleep replaces the sleeping function. Intended for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithJitter replaces the jitter function. Intended for tests.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(o *options) { o.jitter = fn }
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// IsRateLimited reports whether err carries a storage-service throttling
// message. S3-compatible services signal throttling with a SlowDown response
// whose message asks the caller to reduce the request rate.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "reduce your request rate") || strings.Contains(msg, "slowdown")
}

// Do runs op, retrying only rate-limited failures. Before retry attempt n it
// sleeps for a duration drawn uniformly from [0, min(2^n, 32)) seconds. The
// final allowed attempt re-raises the rate-limited error; any other error
// class is returned immediately without consuming a retry.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		attempts: DefaultAttempts,
		sleep:    defaultSleep,
		jitter:   defaultJitter,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			window := time.Duration(1<<uint(attempt)) * time.Second
			if window > maxBackoff {
				window = maxBackoff
			}
			if err := o.sleep(ctx, o.jitter(window)); err != nil {
				return zero, err
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimited(err) || attempt == o.attempts-1 {
			return zero, err
		}
	}
}
