// Package retry provides the shared backoff policy wrapped around every
// fallible collaborator call. Retryability is declared by the error itself,
// never guessed here.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zfault/droidpilot/internal/config"
)

// Policy bounds repeated attempts of one operation.
type Policy struct {
	// MaxAttempts counts the first attempt, so 3 means at most 2 retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	// MaxElapsed caps total time across attempts and waits. Zero disables
	// the cap.
	MaxElapsed time.Duration
}

// FromConfig maps the configuration section onto a Policy.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
		MaxElapsed:  cfg.MaxElapsed,
	}
}

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err declares itself safe to retry. A context
// deadline on a collaborator call counts as transient; everything untagged
// fails fast.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs op under the policy. Non-retryable errors abort after a single
// attempt and surface unchanged. Retryable errors are re-attempted with
// exponential delay until success, MaxAttempts, MaxElapsed, or ctx
// cancellation, whichever comes first; the last error surfaces.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = p.MaxElapsed
	if !p.Jitter {
		b.RandomizationFactor = 0
	}
	b.Reset()

	var policy backoff.BackOff = backoff.WithContext(b, ctx)
	if p.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(p.MaxAttempts-1))
	}

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
