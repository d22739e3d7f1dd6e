package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "mentorbook/internal/slots/errors"
	"mentorbook/pkg/config"
	mongotx "mentorbook/pkg/db/mongo"
	"mentorbook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"
)

type mongoSlotRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type SlotRepository interface {
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	CreateMany(ctx context.Context, slots []*model.AvailabilitySlot) error
	FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	FindByMentor(ctx context.Context, mentorID string, from, to *time.Time, limit int, offset int64) ([]*model.AvailabilitySlot, error)
	CountByMentor(ctx context.Context, mentorID string, from, to *time.Time) (int64, error)
	FindOverlapping(ctx context.Context, mentorID string, start, end time.Time) ([]*model.AvailabilitySlot, error)
	Hold(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	EnsureIndexes(ctx context.Context) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless the context already
// carries a transaction session, which must not be re-wrapped.
func (r *mongoSlotRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoSlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, slot); err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *mongoSlotRepository) CreateMany(ctx context.Context, slots []*model.AvailabilitySlot) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, 0, len(slots))
	for _, slot := range slots {
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.CreatedAt = now
		docs = append(docs, slot)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to create slots: %w", err)
	}
	return nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var slot model.AvailabilitySlot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, slotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

func (r *mongoSlotRepository) FindByMentor(ctx context.Context, mentorID string, from, to *time.Time, limit int, offset int64) ([]*model.AvailabilitySlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.buildMentorFilter(mentorID, from, to)

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.AvailabilitySlot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	return slots, nil
}

func (r *mongoSlotRepository) CountByMentor(ctx context.Context, mentorID string, from, to *time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, r.buildMentorFilter(mentorID, from, to))
	if err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", err)
	}
	return count, nil
}

func (r *mongoSlotRepository) buildMentorFilter(mentorID string, from, to *time.Time) bson.M {
	filter := bson.M{}
	if mentorID != "" {
		filter["mentor_id"] = mentorID
	}

	if from != nil {
		filter["end_time"] = bson.M{"$gt": *from}
	}
	if to != nil {
		filter["start_time"] = bson.M{"$lt": *to}
	}

	return filter
}

func (r *mongoSlotRepository) FindOverlapping(ctx context.Context, mentorID string, start, end time.Time) ([]*model.AvailabilitySlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"mentor_id":  mentorID,
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.AvailabilitySlot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode overlapping slots: %w", err)
	}

	return slots, nil
}

// Hold flips held to true only when the slot is currently free. The filter is
// the precondition: a concurrent claim that got there first leaves
// MatchedCount at zero.
func (r *mongoSlotRepository) Hold(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "held": false}
	update := bson.M{"$set": bson.M{"held": true}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to hold slot: %w", err)
	}

	if result.MatchedCount == 0 {
		return r.classifyMiss(ctx, id, slotserrors.ErrSlotHeld)
	}
	return nil
}

func (r *mongoSlotRepository) Release(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "held": true}
	update := bson.M{"$set": bson.M{"held": false}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}

	if result.MatchedCount == 0 {
		// Already free or gone; releasing is idempotent either way.
		return nil
	}
	return nil
}

func (r *mongoSlotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "held": false})
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	if result.DeletedCount == 0 {
		return r.classifyMiss(ctx, id, slotserrors.ErrSlotHeld)
	}
	return nil
}

// classifyMiss distinguishes "slot does not exist" from "slot exists but the
// precondition failed" after a zero-match write.
func (r *mongoSlotRepository) classifyMiss(ctx context.Context, id string, preconditionErr error) error {
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return slotserrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify slot write miss: %w", err)
	}
	return preconditionErr
}

func (r *mongoSlotRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "mentor_id", Value: 1}, {Key: "start_time", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "start_time", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure slot indexes: %w", err)
	}
	return nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
