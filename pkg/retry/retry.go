// Package retry runs an operation until it succeeds or a Policy gives up,
// sleeping with exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how many times to try and how long to wait between
// attempts. The wait after failed attempt k is BaseDelay * 2^(k-1),
// capped at MaxDelay when MaxDelay is positive.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Attempt is invoked once per try with the 1-based attempt number.
type Attempt func(ctx context.Context, attempt int) error

// OnRetry is called after a failed attempt that will be retried.
type OnRetry func(attempt int, delay time.Duration, err error)

var ErrExhausted = errors.New("retry attempts exhausted")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type Retrier struct {
	policy  Policy
	sleep   Sleeper
	onRetry OnRetry
}

type Option func(*Retrier)

func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

func WithOnRetry(fn OnRetry) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

func New(policy Policy, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrier{policy: policy, sleep: ContextSleep}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn until it returns nil, returns a Permanent error, the attempts
// run out or ctx is done. The last error is wrapped with ErrExhausted when
// attempts run out.
func (r *Retrier) Do(ctx context.Context, fn Attempt) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %v", err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.Delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, delay, lastErr)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", err, lastErr)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}

func Do(ctx context.Context, policy Policy, fn Attempt) error {
	return New(policy).Do(ctx, fn)
}

func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
