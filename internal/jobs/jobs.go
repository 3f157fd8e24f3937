// Package jobs binds the sweeps to orchestrator triggers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"classguard/internal/orchestrator"
	"classguard/internal/schedules/service"
	"classguard/pkg/config"
)

const (
	CancellationJob = "low-participant-cancellation"
	WarningJob      = "low-participant-warning"
)

// Scheduler is the part of the orchestrator Register needs.
type Scheduler interface {
	Start(name string, trigger orchestrator.Trigger, handler orchestrator.Handler) error
}

// Runner adapts sweeps to orchestrator handlers and keeps the last result
// of each job for the admin API.
type Runner struct {
	cfg      *config.Config
	sweepers map[string]service.Sweeper

	mu   sync.RWMutex
	last map[string]*service.SweepResult
}

func NewRunner(cfg *config.Config, cancellation, warning service.Sweeper) *Runner {
	return &Runner{
		cfg: cfg,
		sweepers: map[string]service.Sweeper{
			CancellationJob: cancellation,
			WarningJob:      warning,
		},
		last: make(map[string]*service.SweepResult),
	}
}

// Handler runs one sweep under the configured sweep timeout. A sweep that
// reports failure surfaces as an error so the orchestrator records it.
func (r *Runner) Handler(name string) orchestrator.Handler {
	return func(ctx context.Context) error {
		sweeper, ok := r.sweepers[name]
		if !ok {
			return fmt.Errorf("%w: %s", orchestrator.ErrJobNotFound, name)
		}

		ctx, cancel := context.WithTimeout(ctx, r.cfg.SweepTimeout)
		defer cancel()

		result := sweeper.Sweep(ctx)
		if result == nil {
			return errors.New("sweep returned no result")
		}

		r.mu.Lock()
		r.last[name] = result
		r.mu.Unlock()

		if !result.Success {
			return errors.New(result.Error)
		}
		return nil
	}
}

// LastResult returns the most recent result of a job, or nil.
func (r *Runner) LastResult(name string) *service.SweepResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last[name]
}

// Triggers returns the trigger of each job for the configured scheduler mode.
func Triggers(cfg *config.Config) map[string]orchestrator.Trigger {
	if cfg.SchedulerMode == config.ModeInterval {
		return map[string]orchestrator.Trigger{
			CancellationJob: orchestrator.Interval(cfg.CancellationInterval),
			WarningJob:      orchestrator.Interval(cfg.WarningInterval),
		}
	}
	return map[string]orchestrator.Trigger{
		CancellationJob: orchestrator.DailyAt(cfg.Location, cfg.CancellationTimes...),
		WarningJob:      orchestrator.DailyAt(cfg.Location, cfg.WarningTimes...),
	}
}

// Register starts both jobs. The cancellation job is registered first.
func Register(s Scheduler, r *Runner) error {
	triggers := Triggers(r.cfg)
	for _, name := range []string{CancellationJob, WarningJob} {
		if err := s.Start(name, triggers[name], r.Handler(name)); err != nil {
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		r.cfg.Log.Info("Job registered", "job", name, "trigger", triggers[name].String())
	}
	return nil
}
