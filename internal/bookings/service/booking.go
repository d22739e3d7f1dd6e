package service

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingserrors "mentorbook/internal/bookings/errors"
	"mentorbook/internal/bookings/events"
	"mentorbook/internal/bookings/repository"
	"mentorbook/internal/bookings/validator"
	slotserrors "mentorbook/internal/slots/errors"
	slotsrepo "mentorbook/internal/slots/repository"
	"mentorbook/pkg/config"
	apperrors "mentorbook/pkg/errors"
	"mentorbook/pkg/lock"
	"mentorbook/pkg/model"
)

type BookingService interface {
	Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error)
	Confirm(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id, actorID string) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error)
	ExpireOverdue(ctx context.Context, batchSize int) (int, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	slotRepo  slotsrepo.SlotRepository
	locker    lock.Locker
	validator *validator.BookingValidator
	publisher events.Publisher
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	slotRepo slotsrepo.SlotRepository,
	locker lock.Locker,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		slotRepo:  slotRepo,
		locker:    locker,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Reserve claims a slot for a mentee. The hold on the slot and the pending
// booking are written in one transaction, so the held flag can never disagree
// with the bookings collection.
func (s *bookingService) Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error) {
	if err := s.validator.ValidateReservation(req); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "error", err)
		return nil, apperrors.Validation("Reservation validation failed", map[string]any{"error": err.Error()})
	}

	slot, err := s.slotRepo.FindByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Slot", req.SlotID)
		}
		if errors.Is(err, slotserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid slot ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if !slot.StartTime.After(now) {
		return nil, apperrors.Gone("Slot start time has passed")
	}
	if slot.Held {
		return nil, apperrors.Conflict("Slot is already booked")
	}

	release, err := s.acquireSlotLock(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	defer release()

	booking := &model.Booking{
		MenteeID:     req.MenteeID,
		MentorID:     slot.MentorID,
		SlotID:       slot.ID,
		Status:       model.BookingStatusPending,
		SessionPrice: slot.SessionPrice,
		ExpiresAt:    now.Add(s.cfg.HoldDuration),
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.slotRepo.Hold(txCtx, slot.ID); err != nil {
			if errors.Is(err, slotserrors.ErrSlotHeld) {
				return apperrors.Conflict("Slot is already booked")
			}
			if errors.Is(err, slotserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Slot", slot.ID)
			}
			return apperrors.Internal("Failed to hold slot", err)
		}
		if err := s.repo.Create(txCtx, booking); err != nil {
			if errors.Is(err, bookingserrors.ErrActiveExists) {
				return apperrors.Conflict("Slot is already booked")
			}
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reserve slot", "slot_id", req.SlotID, "mentee_id", req.MenteeID, "error", err)
		return nil, err
	}

	s.emit(ctx, events.TypeBookingCreated, booking)
	s.cfg.Log.Info("Booking reserved successfully",
		"id", booking.ID,
		"slot_id", booking.SlotID,
		"mentee_id", booking.MenteeID,
		"expires_at", booking.ExpiresAt,
	)
	return booking, nil
}

// Confirm settles payment on a pending booking. A booking in any other state,
// paid included, reports its hold as gone.
func (s *bookingService) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.repo.ConfirmPending(ctx, id, now); err != nil {
		return nil, s.classifyTransitionFailure(ctx, id, now, err, "confirmed")
	}

	booking, ferr := s.repo.FindByID(ctx, id)
	if ferr != nil {
		return nil, apperrors.Internal("Failed to retrieve confirmed booking", ferr)
	}

	s.emit(ctx, events.TypeBookingPaid, booking)
	s.cfg.Log.Info("Booking confirmed successfully", "id", id)
	return booking, nil
}

// Cancel voids a pending booking and frees its slot. Only the mentee who made
// the booking or the mentor who owns the slot may cancel.
func (s *bookingService) Cancel(ctx context.Context, id, actorID string) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if actorID == "" {
		return apperrors.InvalidInput("Actor ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid booking ID format")
		}
		return apperrors.Internal("Failed to retrieve booking", err)
	}

	if actorID != booking.MenteeID && actorID != booking.MentorID {
		return apperrors.Forbidden("Only the mentee or the mentor may cancel this booking")
	}

	if booking.Status == model.BookingStatusCancelled {
		return nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.CancelPending(txCtx, id, now); err != nil {
			return err
		}
		if err := s.slotRepo.Release(txCtx, booking.SlotID); err != nil {
			return apperrors.Internal("Failed to release slot", err)
		}
		return nil
	})
	if err != nil {
		return s.classifyTransitionFailure(ctx, id, now, err, "cancelled")
	}

	booking.Status = model.BookingStatusCancelled
	booking.UpdatedAt = now
	s.emit(ctx, events.TypeBookingCancelled, booking)
	s.cfg.Log.Info("Booking cancelled successfully", "id", id, "actor_id", actorID)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	// Reads settle overdue holds themselves rather than waiting for the
	// reaper's next pass.
	now := time.Now().UTC().Truncate(time.Millisecond)
	if booking.Overdue(now) {
		if err := s.expireBooking(ctx, booking, now); err != nil {
			s.cfg.Log.Warn("Lazy expiry failed", "id", id, "error", err)
		} else {
			booking.Status = model.BookingStatusExpired
			booking.UpdatedAt = now
		}
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountAll(ctx, menteeID, mentorID, status)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, menteeID, mentorID, status, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// ExpireOverdue settles a batch of overdue pending bookings and frees their
// slots. It keeps going past per-booking failures; the next pass retries them.
func (s *bookingService) ExpireOverdue(ctx context.Context, batchSize int) (int, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	overdue, err := s.repo.FindOverduePending(ctx, now, batchSize)
	if err != nil {
		return 0, apperrors.Internal("Failed to find overdue bookings", err)
	}

	expired := 0
	for _, booking := range overdue {
		if err := s.expireBooking(ctx, booking, now); err != nil {
			if errors.Is(err, bookingserrors.ErrNotPending) {
				// Settled by a confirm or cancel since the batch was read.
				continue
			}
			s.cfg.Log.Error("Failed to expire booking", "id", booking.ID, "error", err)
			continue
		}
		expired++
	}

	return expired, nil
}

// --- Helpers ---

// expireBooking flips the booking to expired and frees its slot in one
// transaction, then emits the expiry event.
func (s *bookingService) expireBooking(ctx context.Context, booking *model.Booking, now time.Time) error {
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.ExpirePending(txCtx, booking.ID, now); err != nil {
			return err
		}
		if err := s.slotRepo.Release(txCtx, booking.SlotID); err != nil {
			return apperrors.Internal("Failed to release slot", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	settled := *booking
	settled.Status = model.BookingStatusExpired
	settled.UpdatedAt = now
	s.emit(ctx, events.TypeBookingExpired, &settled)
	return nil
}

// classifyTransitionFailure maps repository precondition misses onto API
// errors. A hold found expired is settled on the spot.
func (s *bookingService) classifyTransitionFailure(ctx context.Context, id string, now time.Time, err error, verb string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrHoldExpired):
		booking, ferr := s.repo.FindByID(ctx, id)
		if ferr == nil {
			if expErr := s.expireBooking(ctx, booking, now); expErr != nil {
				s.cfg.Log.Warn("Lazy expiry failed", "id", id, "error", expErr)
			}
		}
		return apperrors.Gone("Booking hold has expired")

	case errors.Is(err, bookingserrors.ErrNotPending):
		// Confirm treats every settled booking the same: the hold is gone.
		if verb == "confirmed" {
			return apperrors.Gone("Booking is no longer pending")
		}
		booking, ferr := s.repo.FindByID(ctx, id)
		if ferr != nil {
			return apperrors.Internal("Failed to retrieve booking", ferr)
		}
		switch booking.Status {
		case model.BookingStatusPaid:
			return apperrors.Conflict("Booking is already paid")
		case model.BookingStatusExpired:
			return apperrors.Gone("Booking hold has expired")
		default:
			return apperrors.Conflict("Booking is already " + string(booking.Status))
		}

	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)

	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")

	case apperrors.IsAppError(err):
		return err
	}

	return apperrors.Internal("Failed to update booking", err)
}

func (s *bookingService) acquireSlotLock(ctx context.Context, slotID string) (func(), error) {
	key := "slot:" + slotID

	acquired, err := s.locker.Lock(ctx, key, s.cfg.SlotLockTTL)
	if err != nil {
		return nil, apperrors.Internal("Failed to acquire slot lock", err)
	}
	if !acquired {
		return nil, apperrors.Conflict("Slot is being reserved by another request. Please try again.")
	}

	return func() {
		if err := s.locker.Unlock(ctx, key); err != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "key", key, "error", err)
		}
	}, nil
}

func (s *bookingService) emit(ctx context.Context, eventType string, booking *model.Booking) {
	if err := s.publisher.Publish(ctx, eventType, booking); err != nil {
		s.cfg.Log.Warn("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}
