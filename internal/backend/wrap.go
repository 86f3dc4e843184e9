package backend

import (
	"context"
	"errors"
	"time"

	"github.com/metalagman/arcft/internal/prompt"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// RateLimited delays calls to next so they never exceed the limiter rate.
type RateLimited struct {
	next    Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of perMinute calls and the
// given burst.
func NewRateLimited(next Backend, perMinute float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

// Invoke waits for a token and calls the wrapped backend.
func (r *RateLimited) Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, classify("wait for rate limiter", err, 0)
		}
		// Wait fails early when the deadline cannot be met.
		return nil, classify("wait for rate limiter", errors.Join(err, context.DeadlineExceeded), 0)
	}
	return r.next.Invoke(ctx, req, opts)
}

// Retrying retries timed out and rate limited calls with exponential backoff.
type Retrying struct {
	next       Backend
	maxRetries uint64
	base       time.Duration
}

// NewRetrying wraps next with up to maxRetries additional attempts.
func NewRetrying(next Backend, maxRetries int, base time.Duration) *Retrying {
	if base <= 0 {
		base = time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{next: next, maxRetries: uint64(maxRetries), base: base}
}

// Invoke calls the wrapped backend, retrying transient failures.
func (r *Retrying) Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error) {
	var texts []string
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := r.next.Invoke(ctx, req, opts)
		if err != nil {
			if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) {
				return retry.RetryableError(err)
			}
			return err
		}
		texts = out
		return nil
	})
	if err != nil {
		return nil, classify("retry backend call", err, 0)
	}
	return texts, nil
}
