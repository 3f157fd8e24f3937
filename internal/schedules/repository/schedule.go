package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingsrepo "classguard/internal/bookings/repository"
	scheduleserrors "classguard/internal/schedules/errors"
	"classguard/pkg/config"
	mongotx "classguard/pkg/db/mongo"
	"classguard/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName         = "Schedules"
	TrainersCollectionName = "Trainers"
	ClassesCollectionName  = "Classes"
)

type ScheduleRepository interface {
	// FindCandidates returns SCHEDULED schedules with a positive minimum
	// starting in [start, end), joined with confirmed bookings, trainer and class.
	FindCandidates(ctx context.Context, start, end time.Time) ([]*model.ScheduleCandidate, error)
	// ClaimForCancellation bumps the schedule version if it is still
	// SCHEDULED, taking the document's write lock for the transaction.
	ClaimForCancellation(ctx context.Context, id string) (*model.Schedule, error)
	MarkCancelled(ctx context.Context, id string, version int64, cancelledBookings int, reason string, at time.Time) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoScheduleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoScheduleRepository(cfg *config.Config) ScheduleRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoScheduleRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client, cfg.CancellationTxTimeout),
	}
}

func (r *mongoScheduleRepository) FindCandidates(ctx context.Context, start, end time.Time) ([]*model.ScheduleCandidate, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, candidatePipeline(start, end), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var candidates []*model.ScheduleCandidate
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode candidate schedules: %w", err)
	}
	return candidates, nil
}

func candidatePipeline(start, end time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":               model.ScheduleScheduled,
			"minimum_participants": bson.M{"$gt": 0},
			"start_time":           bson.M{"$gte": start.UTC(), "$lt": end.UTC()},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "start_time", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": bookingsrepo.CollectionName,
			"let":  bson.M{"sid": bson.M{"$toString": "$_id"}},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$schedule_id", "$$sid"}},
					bson.M{"$eq": bson.A{"$status", model.BookingConfirmed}},
				}}}},
			},
			"as": "confirmed_bookings",
		}}},
		lookupByID(TrainersCollectionName, "$trainer_id", "trainer"),
		{{Key: "$unwind", Value: bson.M{"path": "$trainer", "preserveNullAndEmptyArrays": true}}},
		lookupByID(ClassesCollectionName, "$class_id", "class"),
		{{Key: "$unwind", Value: bson.M{"path": "$class", "preserveNullAndEmptyArrays": true}}},
	}
}

// lookupByID joins a document whose _id is the ObjectID spelled by a hex
// string field. Malformed references join nothing.
func lookupByID(from, localField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.M{
		"from": from,
		"let": bson.M{"ref": bson.M{"$convert": bson.M{
			"input":   localField,
			"to":      "objectId",
			"onError": nil,
			"onNull":  nil,
		}}},
		"pipeline": bson.A{
			bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$_id", "$$ref"}}}},
			bson.M{"$limit": 1},
		},
		"as": as,
	}}}
}

func (r *mongoScheduleRepository) ClaimForCancellation(ctx context.Context, id string) (*model.Schedule, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", scheduleserrors.ErrInvalidID, id)
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": objectID, "status": model.ScheduleScheduled}
	update := bson.M{"$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var schedule model.Schedule
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&schedule); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, scheduleserrors.ErrNotSchedulable
		}
		return nil, fmt.Errorf("failed to claim schedule %s: %w", id, err)
	}
	return &schedule, nil
}

// MarkCancelled moves a claimed schedule to CANCELLED, lowers
// current_bookings by cancelledBookings without going below zero and
// appends reason to notes. It fails with ErrConcurrentUpdate when the
// version no longer matches.
func (r *mongoScheduleRepository) MarkCancelled(ctx context.Context, id string, version int64, cancelledBookings int, reason string, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", scheduleserrors.ErrInvalidID, id)
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": objectID, "status": model.ScheduleScheduled, "version": version}
	notes := bson.M{"$ifNull": bson.A{"$notes", ""}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status": model.ScheduleCancelled,
			"current_bookings": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{
				bson.M{"$ifNull": bson.A{"$current_bookings", 0}},
				cancelledBookings,
			}}}},
			"notes": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$strLenCP": notes}, 0}},
				bson.M{"$concat": bson.A{notes, "\n", reason}},
				reason,
			}},
			"version":    bson.M{"$add": bson.A{"$version", 1}},
			"updated_at": at.UTC().Truncate(time.Millisecond),
		}}},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel schedule %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return scheduleserrors.ErrConcurrentUpdate
	}
	return nil
}

func (r *mongoScheduleRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
