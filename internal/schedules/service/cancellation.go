package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	bookingsrepo "classguard/internal/bookings/repository"
	scheduleserrors "classguard/internal/schedules/errors"
	schedulesrepo "classguard/internal/schedules/repository"
	"classguard/pkg/config"
	mongotx "classguard/pkg/db/mongo"
	"classguard/pkg/logger"
	"classguard/pkg/model"
)

const CancellationReason = "Class cancelled automatically: minimum participant requirement not met"

// errSkipped aborts the cancellation transaction when the re-check shows
// the schedule no longer qualifies. It is not a failure.
var errSkipped = errors.New("cancellation no longer required")

type outcome int

const (
	outcomeCancelled outcome = iota
	outcomeSkipped
)

type CancellationService struct {
	schedules schedulesrepo.ScheduleRepository
	bookings  bookingsrepo.BookingRepository
	notifier  Notifier
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
}

func NewCancellationService(
	schedules schedulesrepo.ScheduleRepository,
	bookings bookingsrepo.BookingRepository,
	notifier Notifier,
	cfg *config.Config,
) *CancellationService {
	return &CancellationService{
		schedules: schedules,
		bookings:  bookings,
		notifier:  notifier,
		cfg:       cfg,
		log:       cfg.Log.With("component", "low-participant-cancellation"),
		now:       time.Now,
	}
}

// Sweep cancels every schedule in tomorrow's window whose confirmed
// bookings are still below its minimum, then notifies the trainer, the
// cancelled members and the waitlist.
func (s *CancellationService) Sweep(ctx context.Context) (result *SweepResult) {
	now := s.now()
	result = &SweepResult{Job: "low-participant-cancellation", StartedAt: now}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Cancellation sweep panicked", "panic", r, "stack", string(debug.Stack()))
			result.fail(fmt.Errorf("panic: %v", r))
		}
		result.FinishedAt = s.now()
		s.log.Info("Cancellation sweep finished", result.logAttrs()...)
	}()

	start, end := CancellationWindow(now, s.cfg.Location, s.cfg.CancellationBuffer(), s.cfg.CancellationReach())
	result.WindowStart, result.WindowEnd = start, end

	candidates, err := s.schedules.FindCandidates(ctx, start, end)
	if err != nil {
		s.log.Error("Failed to query cancellation candidates", "error", err)
		return result.fail(err)
	}
	result.Checked = len(candidates)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			s.log.Warn("Cancellation sweep interrupted", "error", err)
			return result.fail(fmt.Errorf("sweep interrupted: %w", err))
		}
		if !c.BelowMinimum() {
			continue
		}
		s.processCandidate(ctx, c, result)
	}

	result.Success = true
	return result
}

func (s *CancellationService) processCandidate(ctx context.Context, c *model.ScheduleCandidate, result *SweepResult) {
	log := s.log.With("schedule_id", c.ID, "class_name", c.ClassName())

	defer func() {
		if r := recover(); r != nil {
			log.Error("Schedule cancellation panicked", "panic", r, "stack", string(debug.Stack()))
			result.Failed++
		}
	}()

	at := s.now().UTC()
	res, cancelled, err := s.cancel(ctx, c, at)
	if err != nil {
		result.Failed++
		if mongotx.IsTransient(err) || mongotx.IsWriteConflict(err) {
			result.Contended++
			log.Warn("Schedule is contended by a concurrent writer, will retry next sweep", "error", err)
			return
		}
		log.Error("Failed to cancel schedule", "error", err)
		return
	}
	if res == outcomeSkipped {
		log.Info("Schedule no longer qualifies for cancellation")
		result.Skipped++
		return
	}

	result.Cancelled++
	log.Info("Schedule cancelled for low participation",
		"minimum_participants", c.Minimum(),
		"confirmed_bookings", len(cancelled),
	)

	sent, failed := s.notify(ctx, c, cancelled, log)
	result.addDelivery(sent, failed)
}

// cancel runs claim, re-count and the writes in one transaction.
func (s *CancellationService) cancel(ctx context.Context, c *model.ScheduleCandidate, at time.Time) (outcome, []*model.Booking, error) {
	var cancelled []*model.Booking

	err := s.schedules.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		cancelled = nil

		claimed, err := s.schedules.ClaimForCancellation(txCtx, c.ID)
		if err != nil {
			if errors.Is(err, scheduleserrors.ErrNotSchedulable) {
				return fmt.Errorf("%w: %v", errSkipped, err)
			}
			return err
		}
		if !claimed.HasMinimumRequirement() {
			return fmt.Errorf("%w: minimum requirement removed", errSkipped)
		}

		confirmed, err := s.bookings.CountByStatus(txCtx, c.ID, model.BookingConfirmed)
		if err != nil {
			return err
		}
		if confirmed >= int64(claimed.Minimum()) {
			return fmt.Errorf("%w: %d of %d confirmed", errSkipped, confirmed, claimed.Minimum())
		}

		if err := s.schedules.MarkCancelled(txCtx, c.ID, claimed.Version, int(confirmed), CancellationReason, at); err != nil {
			return err
		}

		bookings, err := s.bookings.CancelConfirmed(txCtx, c.ID, CancellationReason, at)
		if err != nil {
			return err
		}
		if int64(len(bookings)) != confirmed {
			return fmt.Errorf("cancelled %d bookings, counted %d", len(bookings), confirmed)
		}
		cancelled = bookings
		return nil
	})

	switch {
	case err == nil:
		return outcomeCancelled, cancelled, nil
	case errors.Is(err, errSkipped):
		return outcomeSkipped, nil, nil
	default:
		return 0, nil, err
	}
}

func (s *CancellationService) notify(ctx context.Context, c *model.ScheduleCandidate, cancelled []*model.Booking, log *logger.Logger) (int, int) {
	base := map[string]any{
		"schedule_id":          c.ID,
		"class_name":           c.ClassName(),
		"start_time":           c.StartTime.UTC().Format(time.RFC3339),
		"reason":               CancellationReason,
		"minimum_participants": c.Minimum(),
		"confirmed_count":      len(cancelled),
	}

	var recipients []recipient
	if trainerID := c.TrainerUserID(); trainerID != "" {
		recipients = append(recipients, recipient{id: trainerID, payload: withEntry(base, "recipient_role", "trainer")})
	} else {
		log.Warn("Trainer has no deliverable identity, skipping trainer notification", "trainer_id", c.TrainerID)
	}

	memberPayload := withEntry(base, "recipient_role", "member")
	for _, b := range cancelled {
		recipients = append(recipients, recipient{id: b.MemberID, payload: withEntry(memberPayload, "is_waitlist", false)})
	}

	waitlist, err := s.bookings.FindBySchedule(ctx, c.ID, model.BookingWaitlist)
	if err != nil {
		log.Error("Failed to load waitlist, waitlisted members will not be notified", "error", err)
	}
	for _, b := range waitlist {
		recipients = append(recipients, recipient{id: b.MemberID, payload: withEntry(memberPayload, "is_waitlist", true)})
	}

	sent, failed := fanOut(ctx, s.notifier, model.NotificationClassCancelled, recipients, s.cfg.NotificationConcurrency, s.cfg.NotificationBudget)
	if failed > 0 {
		log.Warn("Some cancellation notifications were not delivered", "sent", sent, "failed", failed)
	}
	return sent, failed
}
