// Package backend defines the reasoning backend collaborator and its
// concrete clients.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/metalagman/arcft/internal/prompt"
)

var (
	// ErrTimeout reports a call that exceeded its deadline.
	ErrTimeout = errors.New("backend timeout")
	// ErrRateLimit reports a call rejected by a provider quota.
	ErrRateLimit = errors.New("backend rate limited")
	// ErrBackend reports any other call failure.
	ErrBackend = errors.New("backend error")
)

// Options are per-call generation settings.
type Options struct {
	Model       string
	Temperature *float64
	// SampleCount is the number of texts requested from one call. Values
	// below one mean one.
	SampleCount int
}

func (o Options) samples() int {
	if o.SampleCount < 1 {
		return 1
	}
	return o.SampleCount
}

// Backend turns a prompt into one or more response texts.
type Backend interface {
	Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, req prompt.Request, opts Options) ([]string, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error) {
	return f(ctx, req, opts)
}

// Kind returns a short label for a classified error: timeout, rate_limit or
// backend.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	default:
		return "backend"
	}
}

// classify wraps err with exactly one of the sentinel errors. statusCode is
// the provider HTTP status or zero when unknown.
func classify(op string, err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrBackend) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), statusCode == 408, statusCode == 504:
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	case statusCode == 429:
		return fmt.Errorf("%w: %s: %w", ErrRateLimit, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
	}
}
