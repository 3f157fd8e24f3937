// Package dispatcher sends notifications through a sink with bounded
// retries. Callers get a delivery verdict, never an error.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"classguard/internal/notifications/sink"
	"classguard/pkg/config"
	"classguard/pkg/logger"
	"classguard/pkg/model"
	"classguard/pkg/retry"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

type Dispatcher struct {
	sink     sink.Sink
	policy   retry.Policy
	sleep    retry.Sleeper
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*Dispatcher)

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

func New(s sink.Sink, policy retry.Policy, log *logger.Logger, opts ...Option) *Dispatcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	d := &Dispatcher{
		sink:     s,
		policy:   policy,
		sleep:    retry.ContextSleep,
		validate: validator.New(),
		log:      log.With("component", "notification-dispatcher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func NewFromConfig(s sink.Sink, cfg *config.Config) *Dispatcher {
	return New(s, retry.Policy{
		MaxAttempts: cfg.NotificationMaxAttempts,
		BaseDelay:   cfg.NotificationBaseDelay,
	}, cfg.Log)
}

// Send delivers with the configured attempt count.
func (d *Dispatcher) Send(ctx context.Context, recipientID string, t model.NotificationType, payload map[string]any) bool {
	return d.SendWithAttempts(ctx, recipientID, t, payload, d.policy.MaxAttempts)
}

// SendWithAttempts tries up to maxAttempts times, waiting BaseDelay*2^(k-1)
// after failed attempt k. It returns true on the first success. Invalid
// notifications and permanent sink failures are not retried.
func (d *Dispatcher) SendWithAttempts(ctx context.Context, recipientID string, t model.NotificationType, payload map[string]any, maxAttempts int) (delivered bool) {
	log := d.log.With("recipient_id", recipientID, "type", t)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Notification send panicked", "panic", r)
			delivered = false
		}
	}()

	n := model.Notification{
		RecipientID: recipientID,
		Type:        t,
		Payload:     payload,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.validate.Struct(n); err != nil {
		log.Warn("Notification rejected before delivery", "error", err)
		return false
	}

	policy := d.policy
	if maxAttempts >= 1 {
		policy.MaxAttempts = maxAttempts
	}

	r := retry.New(policy,
		retry.WithSleeper(d.sleep),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			log.Warn("Notification attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"retry_in", delay,
				"error", err,
			)
		}),
	)

	err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		err := d.sink.Send(ctx, n)
		if errors.Is(err, sink.ErrPermanent) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		log.Error("Notification delivery failed", "max_attempts", policy.MaxAttempts, "error", err)
		return false
	}
	return true
}
