package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// RetryOptions configures a Retrying registry.
type RetryOptions struct {
	Timeout         time.Duration // per attempt; zero disables
	Retries         uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	TripThreshold   int64
	Verbose         bool
	Logger          io.Writer // nil → os.Stderr
}

// Retrying wraps an Access with per-attempt timeouts, bounded exponential
// retries of transient failures, and a circuit breaker. Permanent errors
// such as ErrUnknownSpace are returned on the first attempt.
type Retrying struct {
	inner   Access
	opts    RetryOptions
	breaker *circuit.Breaker
}

// NewRetrying wraps inner.
func NewRetrying(inner Access, opts RetryOptions) *Retrying {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if opts.TripThreshold <= 0 {
		opts.TripThreshold = 5
	}
	if opts.Logger == nil {
		opts.Logger = os.Stderr
	}

	tripBackoff := backoff.NewExponentialBackOff()
	tripBackoff.InitialInterval = 30 * time.Second
	tripBackoff.MaxInterval = 5 * time.Minute
	tripBackoff.Multiplier = 2.0
	tripBackoff.Reset()

	return &Retrying{
		inner: inner,
		opts:  opts,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    tripBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(opts.TripThreshold),
		}),
	}
}

// Unwrap returns the wrapped Access.
func (r *Retrying) Unwrap() Access { return r.inner }

func (r *Retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !r.breaker.Ready() {
		return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.opts.Retries), ctx)

	attempt := func() error {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		}
		defer cancel()

		var permanent error
		err := r.breaker.Call(func() error {
			callErr := fn(callCtx)
			if callErr != nil && !r.transient(ctx, callErr) {
				permanent = callErr
				return nil
			}
			return callErr
		}, 0)
		switch {
		case permanent != nil:
			return backoff.Permanent(permanent)
		case errors.Is(err, circuit.ErrBreakerOpen):
			return backoff.Permanent(fmt.Errorf("%s: %w", op, ErrCircuitOpen))
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if r.opts.Verbose {
			fmt.Fprintf(r.opts.Logger, "[asp] registry %s failed, retrying in %s: %v\n", op, wait.Round(time.Millisecond), err)
		}
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return err
}

// transient reports whether err is worth another attempt. A per-attempt
// deadline is transient; cancellation of the caller's context is not.
func (r *Retrying) transient(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// Fetch implements Access.
func (r *Retrying) Fetch(ctx context.Context) error {
	return r.do(ctx, "fetch", r.inner.Fetch)
}

// ListTags implements Access.
func (r *Retrying) ListTags(ctx context.Context, id string) ([]Tag, error) {
	var tags []Tag
	err := r.do(ctx, "list tags", func(ctx context.Context) error {
		var err error
		tags, err = r.inner.ListTags(ctx, id)
		return err
	})
	return tags, err
}

// ResolveDistTag implements Access.
func (r *Retrying) ResolveDistTag(ctx context.Context, id, tag string) (string, error) {
	var commit string
	err := r.do(ctx, "resolve dist-tag", func(ctx context.Context) error {
		var err error
		commit, err = r.inner.ResolveDistTag(ctx, id, tag)
		return err
	})
	return commit, err
}

// ResolveCommit implements Access.
func (r *Retrying) ResolveCommit(ctx context.Context, id, rev string) (string, error) {
	var commit string
	err := r.do(ctx, "resolve commit", func(ctx context.Context) error {
		var err error
		commit, err = r.inner.ResolveCommit(ctx, id, rev)
		return err
	})
	return commit, err
}

// ReadFile implements Access.
func (r *Retrying) ReadFile(ctx context.Context, id, commit, name string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "read file", func(ctx context.Context) error {
		var err error
		data, err = r.inner.ReadFile(ctx, id, commit, name)
		return err
	})
	return data, err
}

// Extract implements Access. A failed attempt may leave partial files in
// dest; callers extract into a fresh staging directory.
func (r *Retrying) Extract(ctx context.Context, id, commit, dest string) error {
	return r.do(ctx, "extract", func(ctx context.Context) error {
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		return r.inner.Extract(ctx, id, commit, dest)
	})
}

// SpacePath implements Access.
func (r *Retrying) SpacePath(id string) string { return r.inner.SpacePath(id) }

// WorkingPath implements Access.
func (r *Retrying) WorkingPath(id string) string { return r.inner.WorkingPath(id) }

// Describe implements Access.
func (r *Retrying) Describe() Info { return r.inner.Describe() }
