package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "classguard/internal/bookings/errors"
	"classguard/pkg/config"
	mongotx "classguard/pkg/db/mongo"
	"classguard/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	CountByStatus(ctx context.Context, scheduleID string, status model.BookingStatus) (int64, error)
	FindBySchedule(ctx context.Context, scheduleID string, status model.BookingStatus) ([]*model.Booking, error)
	CancelConfirmed(ctx context.Context, scheduleID, reason string, at time.Time) ([]*model.Booking, error)
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoBookingRepository) CountByStatus(ctx context.Context, scheduleID string, status model.BookingStatus) (int64, error) {
	if scheduleID == "" {
		return 0, bookingserrors.ErrInvalidID
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, statusFilter(scheduleID, status))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s bookings for schedule %s: %w", status, scheduleID, err)
	}
	return count, nil
}

func (r *mongoBookingRepository) FindBySchedule(ctx context.Context, scheduleID string, status model.BookingStatus) ([]*model.Booking, error) {
	if scheduleID == "" {
		return nil, bookingserrors.ErrInvalidID
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, statusFilter(scheduleID, status), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s bookings for schedule %s: %w", status, scheduleID, err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

// CancelConfirmed moves every CONFIRMED booking of the schedule to
// CANCELLED with one timestamp and reason. Meant to run inside the
// cancellation transaction; the read and the bulk update share its snapshot.
func (r *mongoBookingRepository) CancelConfirmed(ctx context.Context, scheduleID, reason string, at time.Time) ([]*model.Booking, error) {
	confirmed, err := r.FindBySchedule(ctx, scheduleID, model.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	if len(confirmed) == 0 {
		return confirmed, nil
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	at = at.UTC().Truncate(time.Millisecond)
	result, err := r.collection.UpdateMany(ctx, statusFilter(scheduleID, model.BookingConfirmed), cancelUpdate(reason, at))
	if err != nil {
		return nil, fmt.Errorf("failed to cancel bookings for schedule %s: %w", scheduleID, err)
	}
	if err := checkCancelled(len(confirmed), result.ModifiedCount); err != nil {
		return nil, err
	}

	for _, b := range confirmed {
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		b.CancellationReason = &reason
	}
	return confirmed, nil
}

func statusFilter(scheduleID string, status model.BookingStatus) bson.M {
	return bson.M{"schedule_id": scheduleID, "status": status}
}

func cancelUpdate(reason string, at time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"status":              model.BookingCancelled,
		"cancelled_at":        at,
		"cancellation_reason": reason,
	}}
}

// checkCancelled fails when the bulk update touched a different number of
// bookings than the transaction read, which means a concurrent writer
// slipped past the snapshot.
func checkCancelled(read int, modified int64) error {
	if modified != int64(read) {
		return fmt.Errorf("%w: read %d, updated %d", bookingserrors.ErrCountMismatch, read, modified)
	}
	return nil
}
