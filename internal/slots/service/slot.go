package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	slotserrors "mentorbook/internal/slots/errors"
	"mentorbook/internal/slots/repository"
	"mentorbook/internal/slots/validator"
	"mentorbook/pkg/config"
	apperrors "mentorbook/pkg/errors"
	"mentorbook/pkg/lock"
	"mentorbook/pkg/model"
)

type SlotService interface {
	Publish(ctx context.Context, req *model.PublishSlotsRequest) ([]*model.AvailabilitySlot, error)
	PublishWeekly(ctx context.Context, pattern *model.WeeklyPattern) ([]*model.AvailabilitySlot, error)
	GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	List(ctx context.Context, mentorID string, from, to *time.Time, limit int, offset int64) ([]*model.AvailabilitySlot, int64, error)
	Delete(ctx context.Context, id string) error
}

type slotService struct {
	repo      repository.SlotRepository
	locker    lock.Locker
	validator *validator.SlotValidator
	cfg       *config.Config
}

func NewSlotService(
	repo repository.SlotRepository,
	locker lock.Locker,
	validator *validator.SlotValidator,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		locker:    locker,
		validator: validator,
		cfg:       cfg,
	}
}

// Publish creates every slot in the batch or none of them. Entries are checked
// against each other and against stored slots before anything is written.
func (s *slotService) Publish(ctx context.Context, req *model.PublishSlotsRequest) ([]*model.AvailabilitySlot, error) {
	if err := s.validator.ValidateBatch(req); err != nil {
		s.cfg.Log.Warn("Slot validation failed", "error", err)
		return nil, apperrors.Validation("Slot validation failed", map[string]any{"error": err.Error()})
	}

	slots := make([]*model.AvailabilitySlot, 0, len(req.Slots))
	for _, entry := range req.Slots {
		slots = append(slots, &model.AvailabilitySlot{
			MentorID:     req.MentorID,
			StartTime:    entry.StartTime,
			EndTime:      entry.EndTime,
			SessionPrice: req.SessionPrice,
			Held:         false,
		})
	}

	if err := verifyNoMutualOverlap(slots); err != nil {
		return nil, apperrors.Conflict("Slots in the request overlap each other")
	}

	release, err := s.acquireMentorLock(ctx, req.MentorID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		for _, slot := range slots {
			if err := s.verifyNoOverlap(txCtx, slot.MentorID, slot.StartTime, slot.EndTime); err != nil {
				return err
			}
		}
		if err := s.repo.CreateMany(txCtx, slots); err != nil {
			return apperrors.Internal("Failed to publish slots", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to publish slots", "mentor_id", req.MentorID, "error", err)
		if errors.Is(err, slotserrors.ErrOverlap) {
			return nil, apperrors.Conflict("Slot overlaps an existing slot for this mentor")
		}
		return nil, err
	}

	s.cfg.Log.Info("Slots published successfully",
		"mentor_id", req.MentorID,
		"count", len(slots),
	)
	return slots, nil
}

func (s *slotService) PublishWeekly(ctx context.Context, pattern *model.WeeklyPattern) ([]*model.AvailabilitySlot, error) {
	if err := s.validator.ValidatePattern(pattern); err != nil {
		s.cfg.Log.Warn("Weekly pattern validation failed", "error", err)
		return nil, apperrors.Validation("Weekly pattern validation failed", map[string]any{"error": err.Error()})
	}

	slots, err := expandWeeklyPattern(pattern, time.Now())
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	release, err := s.acquireMentorLock(ctx, pattern.MentorID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		for _, slot := range slots {
			if err := s.verifyNoOverlap(txCtx, slot.MentorID, slot.StartTime, slot.EndTime); err != nil {
				return err
			}
		}
		if err := s.repo.CreateMany(txCtx, slots); err != nil {
			return apperrors.Internal("Failed to publish weekly slots", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to publish weekly slots", "mentor_id", pattern.MentorID, "error", err)
		if errors.Is(err, slotserrors.ErrOverlap) {
			return nil, apperrors.Conflict("Slot overlaps an existing slot for this mentor")
		}
		return nil, err
	}

	s.cfg.Log.Info("Weekly slots published successfully",
		"mentor_id", pattern.MentorID,
		"weekday", pattern.Weekday.String(),
		"count", len(slots),
	)
	return slots, nil
}

func (s *slotService) GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Slot", id)
		}
		if errors.Is(err, slotserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid slot ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}

	return slot, nil
}

func (s *slotService) List(ctx context.Context, mentorID string, from, to *time.Time, limit int, offset int64) ([]*model.AvailabilitySlot, int64, error) {
	var count int64
	var slots []*model.AvailabilitySlot
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByMentor(ctx, mentorID, from, to)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count slots", "mentor_id", mentorID, "error", errCount)
			errCount = apperrors.Internal("Failed to count slots", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		slots, errFind = s.repo.FindByMentor(ctx, mentorID, from, to, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list slots", "mentor_id", mentorID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve slots", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return slots, count, nil
}

func (s *slotService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Slot ID cannot be empty")
	}

	err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Slot", id)
		}
		if errors.Is(err, slotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid slot ID format")
		}
		if errors.Is(err, slotserrors.ErrSlotHeld) {
			return apperrors.Conflict("Slot has an active booking and cannot be deleted")
		}
		return apperrors.Internal("Failed to delete slot", err)
	}

	s.cfg.Log.Info("Slot deleted successfully", "id", id)
	return nil
}

// --- Helpers ---

func (s *slotService) verifyNoOverlap(ctx context.Context, mentorID string, start, end time.Time) error {
	existing, err := s.repo.FindOverlapping(ctx, mentorID, start, end)
	if err != nil {
		return apperrors.Internal("Failed to check existing slots", err)
	}

	if len(existing) > 0 {
		return fmt.Errorf("%w: %s - %s", slotserrors.ErrOverlap,
			existing[0].StartTime.Format(time.RFC3339),
			existing[0].EndTime.Format(time.RFC3339))
	}
	return nil
}

// verifyNoMutualOverlap checks batch entries against each other; stored slots
// are checked separately inside the transaction.
func verifyNoMutualOverlap(slots []*model.AvailabilitySlot) error {
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].Overlaps(slots[j].StartTime, slots[j].EndTime) {
				return slotserrors.ErrOverlap
			}
		}
	}
	return nil
}

func (s *slotService) acquireMentorLock(ctx context.Context, mentorID string) (func(), error) {
	key := "slots:" + mentorID

	acquired, err := s.locker.Lock(ctx, key, s.cfg.SlotLockTTL)
	if err != nil {
		return nil, apperrors.Internal("Failed to acquire slot lock", err)
	}
	if !acquired {
		return nil, apperrors.Conflict("Another publish for this mentor is in progress. Please try again.")
	}

	return func() {
		if err := s.locker.Unlock(ctx, key); err != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "key", key, "error", err)
		}
	}, nil
}

// expandWeeklyPattern turns a recurring template into concrete slots. The
// first occurrence is the next matching weekday strictly after now.
func expandWeeklyPattern(pattern *model.WeeklyPattern, now time.Time) ([]*model.AvailabilitySlot, error) {
	loc := time.UTC
	if pattern.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(pattern.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid time zone: %s", pattern.TimeZone)
		}
	}

	startOfDay, err := time.Parse("15:04", pattern.StartOfDay)
	if err != nil {
		return nil, fmt.Errorf("invalid start_of_day: %s", pattern.StartOfDay)
	}

	now = now.In(loc)
	first := time.Date(now.Year(), now.Month(), now.Day(),
		startOfDay.Hour(), startOfDay.Minute(), 0, 0, loc)
	for first.Weekday() != pattern.Weekday || !first.After(now) {
		first = first.AddDate(0, 0, 1)
	}

	duration := time.Duration(pattern.DurationMin) * time.Minute
	slots := make([]*model.AvailabilitySlot, 0, pattern.Weeks)
	for w := 0; w < pattern.Weeks; w++ {
		start := first.AddDate(0, 0, 7*w)
		slots = append(slots, &model.AvailabilitySlot{
			MentorID:     pattern.MentorID,
			StartTime:    start,
			EndTime:      start.Add(duration),
			SessionPrice: pattern.SessionPrice,
			Held:         false,
		})
	}

	return slots, nil
}
