package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	scheduleserrors "classguard/internal/schedules/errors"
	mongotx "classguard/pkg/db/mongo"
	"classguard/pkg/model"
)

// memStore implements both repositories over maps. ExecuteTransaction
// serializes transactions and restores a snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	schedules map[string]model.Schedule
	bookings  map[string]model.Booking
	trainers  map[string]model.Trainer
	classes   map[string]model.Class
	nextID    int

	// beforeCount runs inside the transaction right before the re-count.
	beforeCount func(s *memStore)
	external    []model.Booking
	inTx        bool

	findErr  error
	markErrs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[string]model.Schedule{},
		bookings:  map[string]model.Booking{},
		trainers:  map[string]model.Trainer{},
		classes:   map[string]model.Class{},
	}
}

func (s *memStore) addSchedule(sc model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ID] = sc
}

func (s *memStore) addBooking(scheduleID, memberID string, status model.BookingStatus) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBookingLocked(scheduleID, memberID, status)
}

func (s *memStore) addBookingLocked(scheduleID, memberID string, status model.BookingStatus) model.Booking {
	s.nextID++
	b := model.Booking{
		ID:         fmt.Sprintf("booking-%02d", s.nextID),
		ScheduleID: scheduleID,
		MemberID:   memberID,
		Status:     status,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, s.nextID, 0, time.UTC),
	}
	s.bookings[b.ID] = b
	return b
}

// insertConcurrent simulates a booking committed by another writer while
// a transaction is open. It survives a rollback of that transaction.
func (s *memStore) insertConcurrent(scheduleID, memberID string) {
	b := s.addBookingLocked(scheduleID, memberID, model.BookingConfirmed)
	sc := s.schedules[scheduleID]
	sc.CurrentBookings++
	s.schedules[scheduleID] = sc
	s.external = append(s.external, b)
}

func (s *memStore) schedule(id string) model.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[id]
}

func (s *memStore) bookingsFor(scheduleID string) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ScheduleID == scheduleID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) FindCandidates(ctx context.Context, start, end time.Time) ([]*model.ScheduleCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}

	var out []*model.ScheduleCandidate
	for _, sc := range s.schedules {
		if sc.Status != model.ScheduleScheduled || !sc.HasMinimumRequirement() {
			continue
		}
		if sc.StartTime.Before(start) || !sc.StartTime.Before(end) {
			continue
		}
		c := &model.ScheduleCandidate{Schedule: sc}
		for _, b := range s.bookings {
			if b.ScheduleID == sc.ID && b.Status == model.BookingConfirmed {
				c.ConfirmedBookings = append(c.ConfirmedBookings, b)
			}
		}
		if t, ok := s.trainers[sc.TrainerID]; ok {
			c.Trainer = &t
		}
		if cl, ok := s.classes[sc.ClassID]; ok {
			c.Class = &cl
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) ClaimForCancellation(ctx context.Context, id string) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok || sc.Status != model.ScheduleScheduled {
		return nil, scheduleserrors.ErrNotSchedulable
	}
	sc.Version++
	s.schedules[id] = sc
	return &sc, nil
}

func (s *memStore) MarkCancelled(ctx context.Context, id string, version int64, cancelled int, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErrs[id]; err != nil {
		return err
	}
	sc, ok := s.schedules[id]
	if !ok || sc.Version != version || sc.Status != model.ScheduleScheduled {
		return scheduleserrors.ErrConcurrentUpdate
	}
	sc.Status = model.ScheduleCancelled
	sc.CurrentBookings = max(0, sc.CurrentBookings-cancelled)
	sc.Notes = model.AppendNote(sc.Notes, reason)
	sc.Version++
	sc.UpdatedAt = at
	s.schedules[id] = sc
	return nil
}

func (s *memStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	schedules := make(map[string]model.Schedule, len(s.schedules))
	for k, v := range s.schedules {
		schedules[k] = v
	}
	bookings := make(map[string]model.Booking, len(s.bookings))
	for k, v := range s.bookings {
		bookings[k] = v
	}
	s.external = nil
	s.inTx = true
	s.mu.Unlock()

	err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx = false
	if err != nil {
		s.schedules = schedules
		s.bookings = bookings
		for _, b := range s.external {
			s.bookings[b.ID] = b
			sc := s.schedules[b.ScheduleID]
			sc.CurrentBookings++
			s.schedules[b.ScheduleID] = sc
		}
		return err
	}
	return nil
}

func (s *memStore) CountByStatus(ctx context.Context, scheduleID string, status model.BookingStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeCount != nil && s.inTx {
		s.beforeCount(s)
	}
	var n int64
	for _, b := range s.bookings {
		if b.ScheduleID == scheduleID && b.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindBySchedule(ctx context.Context, scheduleID string, status model.BookingStatus) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.ScheduleID == scheduleID && b.Status == status {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) CancelConfirmed(ctx context.Context, scheduleID, reason string, at time.Time) ([]*model.Booking, error) {
	s.mu.Lock()
	inTx := s.inTx
	s.mu.Unlock()
	if !inTx {
		return nil, errors.New("CancelConfirmed called outside a transaction")
	}
	confirmed, _ := s.FindBySchedule(ctx, scheduleID, model.BookingConfirmed)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range confirmed {
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		b.CancellationReason = &reason
		s.bookings[b.ID] = *b
	}
	return confirmed, nil
}

type notification struct {
	recipientID string
	kind        model.NotificationType
	payload     map[string]any
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fail  map[string]bool
	delay time.Duration
}

func (n *fakeNotifier) Send(ctx context.Context, recipientID string, t model.NotificationType, payload map[string]any) bool {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return false
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{recipientID: recipientID, kind: t, payload: payload})
	return !n.fail[recipientID]
}

func (n *fakeNotifier) byRecipient() map[string]notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]notification, len(n.sent))
	for _, s := range n.sent {
		out[s.recipientID] = s
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
