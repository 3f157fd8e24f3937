package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"classguard/pkg/config"
	mongotx "classguard/pkg/db/mongo"
	"classguard/pkg/logger"
	"classguard/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

var testLoc = time.FixedZone("UTC+07:00", 7*3600)

// 2026-03-10 08:00 local; the window is [03-11 09:00, 03-12 01:00) local.
var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, testLoc)

func testConfig() *config.Config {
	return &config.Config{
		Log:                     logger.Discard(),
		Location:                testLoc,
		CancellationBufferHours: 1,
		NotificationConcurrency: 4,
		NotificationBudget:      time.Minute,
	}
}

func intPtr(v int) *int { return &v }

// seedScenarioA stores a schedule with minimum 5 starting at now+25h with
// 3 confirmed and 2 waitlisted bookings.
func seedScenarioA(store *memStore) {
	store.trainers["trainer-1"] = model.Trainer{ID: "trainer-1", Name: "Ana", UserID: "user-trainer-1"}
	store.classes["class-1"] = model.Class{ID: "class-1", Name: "Morning Yoga"}
	store.addSchedule(model.Schedule{
		ID:                  "S",
		Status:              model.ScheduleScheduled,
		StartTime:           testNow.Add(25 * time.Hour).UTC(),
		EndTime:             testNow.Add(26 * time.Hour).UTC(),
		MinimumParticipants: intPtr(5),
		CurrentBookings:     3,
		TrainerID:           "trainer-1",
		ClassID:             "class-1",
		Notes:               "Bring a mat",
	})
	store.addBooking("S", "member-1", model.BookingConfirmed)
	store.addBooking("S", "member-2", model.BookingConfirmed)
	store.addBooking("S", "member-3", model.BookingConfirmed)
	store.addBooking("S", "wait-1", model.BookingWaitlist)
	store.addBooking("S", "wait-2", model.BookingWaitlist)
}

func newTestCancellationService(store *memStore, notifier Notifier) *CancellationService {
	svc := NewCancellationService(store, store, notifier, testConfig())
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestCancellationSweep_ScenarioA(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 6, result.NotificationsSent)
	assert.Equal(t, 0, result.NotificationsFailed)

	s := store.schedule("S")
	assert.Equal(t, model.ScheduleCancelled, s.Status)
	assert.Equal(t, 0, s.CurrentBookings)
	assert.Equal(t, "Bring a mat\n"+CancellationReason, s.Notes)

	var stamp *time.Time
	for _, b := range store.bookingsFor("S") {
		switch b.Status {
		case model.BookingCancelled:
			require.NotNil(t, b.CancelledAt)
			require.NotNil(t, b.CancellationReason)
			assert.Equal(t, CancellationReason, *b.CancellationReason)
			if stamp == nil {
				stamp = b.CancelledAt
			}
			assert.True(t, stamp.Equal(*b.CancelledAt), "all bookings share one cancelled_at")
		case model.BookingWaitlist:
			assert.Nil(t, b.CancelledAt, "waitlist bookings are never mutated")
		default:
			t.Fatalf("unexpected booking status %s", b.Status)
		}
	}

	sent := notifier.byRecipient()
	require.Len(t, sent, 6)
	for _, id := range []string{"user-trainer-1", "member-1", "member-2", "member-3", "wait-1", "wait-2"} {
		n, ok := sent[id]
		require.True(t, ok, "missing notification for %s", id)
		assert.Equal(t, model.NotificationClassCancelled, n.kind)
		assert.Equal(t, "Morning Yoga", n.payload["class_name"])
	}
	assert.Equal(t, true, sent["wait-1"].payload["is_waitlist"])
	assert.Equal(t, false, sent["member-1"].payload["is_waitlist"])
	assert.Equal(t, "trainer", sent["user-trainer-1"].payload["recipient_role"])
}

func TestCancellationSweep_ScenarioB_ConcurrentBookingStillBelowMinimum(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	store.beforeCount = func(s *memStore) {
		s.insertConcurrent("S", "member-4")
		s.beforeCount = nil
	}
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, model.ScheduleCancelled, store.schedule("S").Status)
	assert.Equal(t, 0, store.schedule("S").CurrentBookings)

	cancelled := 0
	for _, b := range store.bookingsFor("S") {
		if b.Status == model.BookingCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 4, cancelled)
	assert.Contains(t, notifier.byRecipient(), "member-4")
	assert.Equal(t, 7, result.NotificationsSent)
}

func TestCancellationSweep_ScenarioB_ConcurrentBookingReachesMinimum(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	store.beforeCount = func(s *memStore) {
		s.insertConcurrent("S", "member-4")
		s.insertConcurrent("S", "member-5")
		s.beforeCount = nil
	}
	before := store.schedule("S")
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 0, result.Cancelled)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	after := store.schedule("S")
	assert.Equal(t, model.ScheduleScheduled, after.Status)
	assert.Equal(t, before.Version, after.Version, "aborted claim leaves no trace")
	assert.Equal(t, before.Notes, after.Notes)
	assert.Equal(t, 5, after.CurrentBookings)
	for _, b := range store.bookingsFor("S") {
		assert.NotEqual(t, model.BookingCancelled, b.Status)
	}
	assert.Equal(t, 0, notifier.count())
}

func TestCancellationSweep_ScenarioC_NullMinimumExcluded(t *testing.T) {
	store := newMemStore()
	for id, minimum := range map[string]*int{"T-null": nil, "T-zero": intPtr(0), "T-negative": intPtr(-1)} {
		store.addSchedule(model.Schedule{
			ID:                  id,
			Status:              model.ScheduleScheduled,
			StartTime:           testNow.Add(25 * time.Hour).UTC(),
			MinimumParticipants: minimum,
		})
	}
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 0, result.Checked)
	assert.Equal(t, 0, result.Cancelled)
	for _, id := range []string{"T-null", "T-zero", "T-negative"} {
		assert.Equal(t, model.ScheduleScheduled, store.schedule(id).Status)
	}
	assert.Equal(t, 0, notifier.count())
}

func TestCancellationSweep_Idempotent(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	notifier := &fakeNotifier{}
	svc := newTestCancellationService(store, notifier)

	first := svc.Sweep(context.Background())
	require.Equal(t, 1, first.Cancelled)
	cancelledAt := *store.bookingsFor("S")[0].CancelledAt
	notes := store.schedule("S").Notes

	second := svc.Sweep(context.Background())

	require.True(t, second.Success)
	assert.Equal(t, 0, second.Checked)
	assert.Equal(t, 0, second.Cancelled)
	assert.Equal(t, notes, store.schedule("S").Notes, "reason is appended once")
	assert.Equal(t, cancelledAt, *store.bookingsFor("S")[0].CancelledAt)
	assert.Equal(t, 6, notifier.count(), "no notifications on the second sweep")
}

func TestCancellationSweep_OutsideWindowIgnored(t *testing.T) {
	store := newMemStore()
	for id, start := range map[string]time.Time{
		"too-early": testNow.Add(24*time.Hour + 30*time.Minute),
		"day-after": time.Date(2026, 3, 12, 1, 0, 0, 0, testLoc),
	} {
		store.addSchedule(model.Schedule{
			ID:                  id,
			Status:              model.ScheduleScheduled,
			StartTime:           start.UTC(),
			MinimumParticipants: intPtr(3),
		})
	}

	result := newTestCancellationService(store, &fakeNotifier{}).Sweep(context.Background())

	assert.Equal(t, 0, result.Checked)
	assert.Equal(t, model.ScheduleScheduled, store.schedule("too-early").Status)
	assert.Equal(t, model.ScheduleScheduled, store.schedule("day-after").Status)
}

func TestCancellationSweep_AtMinimumNotCancelled(t *testing.T) {
	store := newMemStore()
	store.addSchedule(model.Schedule{
		ID:                  "full",
		Status:              model.ScheduleScheduled,
		StartTime:           testNow.Add(26 * time.Hour).UTC(),
		MinimumParticipants: intPtr(2),
		CurrentBookings:     2,
	})
	store.addBooking("full", "m1", model.BookingConfirmed)
	store.addBooking("full", "m2", model.BookingConfirmed)

	result := newTestCancellationService(store, &fakeNotifier{}).Sweep(context.Background())

	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 0, result.Cancelled)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, model.ScheduleScheduled, store.schedule("full").Status)
}

func TestCancellationSweep_ZeroConfirmedBookings(t *testing.T) {
	store := newMemStore()
	store.addSchedule(model.Schedule{
		ID:                  "empty",
		Status:              model.ScheduleScheduled,
		StartTime:           testNow.Add(30 * time.Hour).UTC(),
		MinimumParticipants: intPtr(4),
		TrainerID:           "no-such-trainer",
	})
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, CancellationReason, store.schedule("empty").Notes)
	assert.Equal(t, 0, notifier.count(), "trainer without identity is skipped")
}

func TestCancellationSweep_QueryFailure(t *testing.T) {
	store := newMemStore()
	store.findErr = errors.New("server selection timeout")

	result := newTestCancellationService(store, &fakeNotifier{}).Sweep(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "server selection timeout")
	assert.False(t, result.FinishedAt.IsZero())
}

func TestCancellationSweep_NotificationFailuresCounted(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	notifier := &fakeNotifier{fail: map[string]bool{"member-2": true, "wait-2": true}}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 4, result.NotificationsSent)
	assert.Equal(t, 2, result.NotificationsFailed)
	assert.Equal(t, model.ScheduleCancelled, store.schedule("S").Status, "delivery failures never roll back")
}

type panickingNotifier struct{}

func (panickingNotifier) Send(context.Context, string, model.NotificationType, map[string]any) bool {
	panic("notifier exploded")
}

func TestCancellationSweep_NotifierPanicContained(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)

	var result *SweepResult
	require.NotPanics(t, func() {
		result = newTestCancellationService(store, panickingNotifier{}).Sweep(context.Background())
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.NotificationsSent)
	assert.Equal(t, 6, result.NotificationsFailed)
	assert.Equal(t, model.ScheduleCancelled, store.schedule("S").Status)
}

func TestCancellationSweep_PerScheduleFailureDoesNotStopSweep(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	store.addSchedule(model.Schedule{
		ID:                  "S0",
		Status:              model.ScheduleScheduled,
		StartTime:           testNow.Add(25*time.Hour + 30*time.Minute).UTC(),
		MinimumParticipants: intPtr(2),
	})
	store.addBooking("S0", "member-9", model.BookingConfirmed)
	store.markErrs = map[string]error{"S": errors.New("write conflict")}

	result := newTestCancellationService(store, &fakeNotifier{}).Sweep(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Contended)
	assert.Equal(t, model.ScheduleScheduled, store.schedule("S").Status)
	assert.Equal(t, int64(0), store.schedule("S").Version, "failed transaction rolled back")
	assert.Equal(t, model.ScheduleCancelled, store.schedule("S0").Status)
	for _, b := range store.bookingsFor("S") {
		assert.NotEqual(t, model.BookingCancelled, b.Status)
	}
}

func TestCancellationSweep_CancelledContext(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestCancellationService(store, &fakeNotifier{}).Sweep(ctx)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "sweep interrupted")
	assert.Equal(t, model.ScheduleScheduled, store.schedule("S").Status)
}

func TestCancellationSweep_WriteConflictCountedAsContended(t *testing.T) {
	store := newMemStore()
	seedScenarioA(store)
	store.markErrs = map[string]error{"S": mongo.CommandError{
		Code:   112,
		Name:   "WriteConflict",
		Labels: []string{mongotx.LabelTransientTransaction},
	}}
	notifier := &fakeNotifier{}

	result := newTestCancellationService(store, notifier).Sweep(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Contended)
	assert.Equal(t, 0, result.Cancelled)
	assert.Equal(t, model.ScheduleScheduled, store.schedule("S").Status)
	assert.Equal(t, 0, notifier.count())

	// The next sweep picks the schedule up again once the conflict clears.
	store.markErrs = nil
	second := newTestCancellationService(store, notifier).Sweep(context.Background())
	assert.Equal(t, 1, second.Cancelled)
	assert.Equal(t, 0, second.Contended)
}

func TestCancellationSweep_TrainerWithoutDeliverableIdentity(t *testing.T) {
	for name, trainer := range map[string]*model.Trainer{
		"empty user id":   {ID: "trainer-1", Name: "Ana"},
		"missing trainer": nil,
	} {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			seedScenarioA(store)
			delete(store.trainers, "trainer-1")
			if trainer != nil {
				store.trainers["trainer-1"] = *trainer
			}
			notifier := &fakeNotifier{}

			result := newTestCancellationService(store, notifier).Sweep(context.Background())

			require.True(t, result.Success, result.Error)
			assert.Equal(t, 1, result.Cancelled)
			assert.Equal(t, 5, result.NotificationsSent)
			assert.Equal(t, 0, result.NotificationsFailed)

			sent := notifier.byRecipient()
			assert.Len(t, sent, 5)
			assert.NotContains(t, sent, "")
			for _, n := range sent {
				assert.Equal(t, "member", n.payload["recipient_role"])
			}
		})
	}
}
