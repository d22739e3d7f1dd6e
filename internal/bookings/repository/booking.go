package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "mentorbook/internal/bookings/errors"
	"mentorbook/pkg/config"
	mongotx "mentorbook/pkg/db/mongo"
	"mentorbook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error)
	CountAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus) (int64, error)
	FindActiveBySlot(ctx context.Context, slotID string) (*model.Booking, error)
	ConfirmPending(ctx context.Context, id string, now time.Time) error
	CancelPending(ctx context.Context, id string, now time.Time) error
	ExpirePending(ctx context.Context, id string, now time.Time) error
	FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	EnsureIndexes(ctx context.Context) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless the context already
// carries a transaction session, which must not be re-wrapped.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrActiveExists
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildListFilter(menteeID, mentorID, status), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildListFilter(menteeID, mentorID, status))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func buildListFilter(menteeID, mentorID string, status model.BookingStatus) bson.M {
	filter := bson.M{}
	if menteeID != "" {
		filter["mentee_id"] = menteeID
	}
	if mentorID != "" {
		filter["mentor_id"] = mentorID
	}
	if status != "" {
		filter["status"] = status
	}
	return filter
}

func (r *mongoBookingRepository) FindActiveBySlot(ctx context.Context, slotID string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"slot_id": slotID,
		"status":  bson.M{"$in": []model.BookingStatus{model.BookingStatusPending, model.BookingStatusPaid}},
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, filter).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active booking for slot: %w", err)
	}

	return &booking, nil
}

// ConfirmPending moves a booking from pending to paid. The filter requires the
// deadline to still be open, so a confirmation racing the reaper can never
// revive an expired hold.
func (r *mongoBookingRepository) ConfirmPending(ctx context.Context, id string, now time.Time) error {
	filter := bson.M{
		"_id":        id,
		"status":     model.BookingStatusPending,
		"expires_at": bson.M{"$gt": now},
	}
	return r.transitionPending(ctx, id, filter, model.BookingStatusPaid, now)
}

// CancelPending moves a booking from pending to cancelled. An overdue pending
// booking is treated as already expired.
func (r *mongoBookingRepository) CancelPending(ctx context.Context, id string, now time.Time) error {
	filter := bson.M{
		"_id":        id,
		"status":     model.BookingStatusPending,
		"expires_at": bson.M{"$gt": now},
	}
	return r.transitionPending(ctx, id, filter, model.BookingStatusCancelled, now)
}

// ExpirePending moves an overdue pending booking to expired. A zero match
// means another writer settled the booking first.
func (r *mongoBookingRepository) ExpirePending(ctx context.Context, id string, now time.Time) error {
	filter := bson.M{
		"_id":        id,
		"status":     model.BookingStatusPending,
		"expires_at": bson.M{"$lte": now},
	}
	return r.transitionPending(ctx, id, filter, model.BookingStatusExpired, now)
}

func (r *mongoBookingRepository) transitionPending(ctx context.Context, id string, filter bson.M, target model.BookingStatus, now time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	update := bson.M{"$set": bson.M{
		"status":     target,
		"updated_at": now,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to transition booking to %s: %w", target, err)
	}

	if result.MatchedCount == 0 {
		return r.classifyMiss(ctx, id, now)
	}
	return nil
}

// classifyMiss inspects the booking after a zero-match transition to report
// why the precondition failed.
func (r *mongoBookingRepository) classifyMiss(ctx context.Context, id string, now time.Time) error {
	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return bookingserrors.ErrNotFound
		}
		return fmt.Errorf("failed to classify booking write miss: %w", err)
	}

	if booking.Overdue(now) {
		return bookingserrors.ErrHoldExpired
	}
	return bookingserrors.ErrNotPending
}

func (r *mongoBookingRepository) FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.BookingStatusPending,
		"expires_at": bson.M{"$lte": now},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode overdue bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// At most one active booking per slot, enforced by the database
			// even if every application-level check is bypassed.
			Keys: bson.D{{Key: "slot_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []model.BookingStatus{model.BookingStatusPending, model.BookingStatusPaid}},
				}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "mentee_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "mentor_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure booking indexes: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
