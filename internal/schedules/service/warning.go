package service

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	schedulesrepo "classguard/internal/schedules/repository"
	"classguard/pkg/config"
	"classguard/pkg/logger"
	"classguard/pkg/model"
)

type WarningService struct {
	schedules schedulesrepo.ScheduleRepository
	notifier  Notifier
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
}

func NewWarningService(schedules schedulesrepo.ScheduleRepository, notifier Notifier, cfg *config.Config) *WarningService {
	return &WarningService{
		schedules: schedules,
		notifier:  notifier,
		cfg:       cfg,
		log:       cfg.Log.With("component", "low-participant-warning"),
		now:       time.Now,
	}
}

// Sweep warns the trainer and confirmed members of every schedule starting
// in [now+23h, now+25h) that is below its minimum. It never writes.
func (s *WarningService) Sweep(ctx context.Context) (result *SweepResult) {
	now := s.now()
	result = &SweepResult{Job: "low-participant-warning", StartedAt: now}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Warning sweep panicked", "panic", r, "stack", string(debug.Stack()))
			result.fail(fmt.Errorf("panic: %v", r))
		}
		result.FinishedAt = s.now()
		s.log.Info("Warning sweep finished", result.logAttrs()...)
	}()

	start, end := WarningWindow(now)
	result.WindowStart, result.WindowEnd = start, end

	candidates, err := s.schedules.FindCandidates(ctx, start, end)
	if err != nil {
		s.log.Error("Failed to query warning candidates", "error", err)
		return result.fail(err)
	}
	result.Checked = len(candidates)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			s.log.Warn("Warning sweep interrupted", "error", err)
			return result.fail(fmt.Errorf("sweep interrupted: %w", err))
		}
		if !c.BelowMinimum() {
			continue
		}
		s.warn(ctx, c, now, result)
	}

	result.Success = true
	return result
}

func (s *WarningService) warn(ctx context.Context, c *model.ScheduleCandidate, now time.Time, result *SweepResult) {
	log := s.log.With("schedule_id", c.ID, "class_name", c.ClassName())

	defer func() {
		if r := recover(); r != nil {
			log.Error("Schedule warning panicked", "panic", r, "stack", string(debug.Stack()))
			result.Failed++
		}
	}()

	base := map[string]any{
		"schedule_id":          c.ID,
		"class_name":           c.ClassName(),
		"start_time":           c.StartTime.UTC().Format(time.RFC3339),
		"minimum_participants": c.Minimum(),
		"current_participants": c.ConfirmedCount(),
		"hours_until_start":    int(math.Round(c.StartTime.Sub(now).Hours())),
	}

	var recipients []recipient
	if trainerID := c.TrainerUserID(); trainerID != "" {
		recipients = append(recipients, recipient{id: trainerID, payload: withEntry(base, "recipient_role", "trainer")})
	} else {
		log.Warn("Trainer has no deliverable identity, skipping trainer warning", "trainer_id", c.TrainerID)
	}
	for _, b := range c.ConfirmedBookings {
		recipients = append(recipients, recipient{id: b.MemberID, payload: withEntry(base, "recipient_role", "member")})
	}

	sent, failed := fanOut(ctx, s.notifier, model.NotificationLowParticipantsWarning, recipients, s.cfg.NotificationConcurrency, s.cfg.NotificationBudget)
	result.Warned++
	result.addDelivery(sent, failed)

	log.Info("Low participation warning sent",
		"minimum_participants", c.Minimum(),
		"confirmed_bookings", c.ConfirmedCount(),
		"sent", sent,
		"failed", failed,
	)
}
