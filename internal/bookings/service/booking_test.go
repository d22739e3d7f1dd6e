package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	bookingserrors "mentorbook/internal/bookings/errors"
	"mentorbook/internal/bookings/validator"
	slotserrors "mentorbook/internal/slots/errors"
	"mentorbook/pkg/config"
	mongotx "mentorbook/pkg/db/mongo"
	apperrors "mentorbook/pkg/errors"
	"mentorbook/pkg/logger"
	"mentorbook/pkg/model"

	"github.com/google/uuid"
)

// fakeStore backs both fake repositories so transactions observe one shared
// state, mirroring how the real repositories share a database.
type fakeStore struct {
	mu       sync.Mutex
	slots    map[string]*model.AvailabilitySlot
	bookings map[string]*model.Booking
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:    make(map[string]*model.AvailabilitySlot),
		bookings: make(map[string]*model.Booking),
	}
}

type fakeSlotRepository struct {
	store *fakeStore
}

func (r *fakeSlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	copied := *slot
	r.store.slots[slot.ID] = &copied
	return nil
}

func (r *fakeSlotRepository) CreateMany(ctx context.Context, slots []*model.AvailabilitySlot) error {
	for _, slot := range slots {
		if err := r.Create(ctx, slot); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeSlotRepository) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[id]
	if !ok {
		return nil, slotserrors.ErrNotFound
	}
	copied := *slot
	return &copied, nil
}

func (r *fakeSlotRepository) FindByMentor(ctx context.Context, mentorID string, from, to *time.Time, limit int, offset int64) ([]*model.AvailabilitySlot, error) {
	return nil, nil
}

func (r *fakeSlotRepository) CountByMentor(ctx context.Context, mentorID string, from, to *time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeSlotRepository) FindOverlapping(ctx context.Context, mentorID string, start, end time.Time) ([]*model.AvailabilitySlot, error) {
	return nil, nil
}

func (r *fakeSlotRepository) Hold(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[id]
	if !ok {
		return slotserrors.ErrNotFound
	}
	if slot.Held {
		return slotserrors.ErrSlotHeld
	}
	slot.Held = true
	return nil
}

func (r *fakeSlotRepository) Release(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if slot, ok := r.store.slots[id]; ok {
		slot.Held = false
	}
	return nil
}

func (r *fakeSlotRepository) Delete(ctx context.Context, id string) error {
	return nil
}

func (r *fakeSlotRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (r *fakeSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type fakeBookingRepository struct {
	store *fakeStore
}

func (r *fakeBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range r.store.bookings {
		if b.SlotID == booking.SlotID && b.Active() {
			return bookingserrors.ErrActiveExists
		}
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	copied := *booking
	r.store.bookings[booking.ID] = &copied
	return nil
}

func (r *fakeBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	copied := *booking
	return &copied, nil
}

func (r *fakeBookingRepository) FindAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.store.bookings {
		if menteeID != "" && b.MenteeID != menteeID {
			continue
		}
		if mentorID != "" && b.MentorID != mentorID {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		copied := *b
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeBookingRepository) CountAll(ctx context.Context, menteeID, mentorID string, status model.BookingStatus) (int64, error) {
	bookings, _ := r.FindAll(ctx, menteeID, mentorID, status, 0, 0)
	return int64(len(bookings)), nil
}

func (r *fakeBookingRepository) FindActiveBySlot(ctx context.Context, slotID string) (*model.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, b := range r.store.bookings {
		if b.SlotID == slotID && b.Active() {
			copied := *b
			return &copied, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (r *fakeBookingRepository) ConfirmPending(ctx context.Context, id string, now time.Time) error {
	return r.transition(id, now, model.BookingStatusPaid, false)
}

func (r *fakeBookingRepository) CancelPending(ctx context.Context, id string, now time.Time) error {
	return r.transition(id, now, model.BookingStatusCancelled, false)
}

func (r *fakeBookingRepository) ExpirePending(ctx context.Context, id string, now time.Time) error {
	return r.transition(id, now, model.BookingStatusExpired, true)
}

func (r *fakeBookingRepository) transition(id string, now time.Time, target model.BookingStatus, wantOverdue bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if booking.Status != model.BookingStatusPending {
		return bookingserrors.ErrNotPending
	}
	if booking.Overdue(now) != wantOverdue {
		if wantOverdue {
			return bookingserrors.ErrNotPending
		}
		return bookingserrors.ErrHoldExpired
	}
	booking.Status = target
	booking.UpdatedAt = now
	return nil
}

func (r *fakeBookingRepository) FindOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.store.bookings {
		if b.Overdue(now) {
			copied := *b
			out = append(out, &copied)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeBookingRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (r *fakeBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// memLocker is a SetNX-style lock for exercising contention in tests.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturingPublisher) Publish(ctx context.Context, eventType string, booking *model.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *capturingPublisher) captured() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	svc       BookingService
	store     *fakeStore
	slots     *fakeSlotRepository
	publisher *capturingPublisher
	cfg       *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		HoldDuration: 5 * time.Minute,
		SlotLockTTL:  10 * time.Second,
		Log:          logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard}),
	}

	store := newFakeStore()
	slotRepo := &fakeSlotRepository{store: store}
	bookingRepo := &fakeBookingRepository{store: store}
	publisher := &capturingPublisher{}

	svc := NewBookingService(
		bookingRepo,
		slotRepo,
		newMemLocker(),
		validator.NewBookingValidator(cfg.Log),
		publisher,
		cfg,
	)

	return &fixture{
		svc:       svc,
		store:     store,
		slots:     slotRepo,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (f *fixture) addSlot(t *testing.T, startIn time.Duration) *model.AvailabilitySlot {
	t.Helper()

	start := time.Now().UTC().Add(startIn)
	slot := &model.AvailabilitySlot{
		ID:           uuid.NewString(),
		MentorID:     uuid.NewString(),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		SessionPrice: 7500,
	}
	if err := f.slots.Create(context.Background(), slot); err != nil {
		t.Fatalf("failed to seed slot: %v", err)
	}
	return slot
}

func (f *fixture) slotHeld(t *testing.T, id string) bool {
	t.Helper()

	slot, err := f.slots.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read slot: %v", err)
	}
	return slot.Held
}

func (f *fixture) reserve(t *testing.T, slotID string) *model.Booking {
	t.Helper()

	booking, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
		MenteeID: uuid.NewString(),
		SlotID:   slotID,
	})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	return booking
}

// forceOverdue rewinds a booking's deadline so it reads as lapsed.
func (f *fixture) forceOverdue(t *testing.T, id string) {
	t.Helper()

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	booking, ok := f.store.bookings[id]
	if !ok {
		t.Fatalf("booking %s not in store", id)
	}
	booking.ExpiresAt = time.Now().UTC().Add(-time.Minute)
}

func TestBookingService_Reserve(t *testing.T) {
	t.Run("reserves a free slot", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)

		before := time.Now().UTC()
		booking := f.reserve(t, slot.ID)

		if booking.Status != model.BookingStatusPending {
			t.Errorf("status = %s, want pending", booking.Status)
		}
		if booking.SessionPrice != slot.SessionPrice {
			t.Errorf("session price = %d, want %d", booking.SessionPrice, slot.SessionPrice)
		}
		if booking.MentorID != slot.MentorID {
			t.Errorf("mentor_id = %s, want %s", booking.MentorID, slot.MentorID)
		}

		wantDeadline := before.Add(f.cfg.HoldDuration)
		if booking.ExpiresAt.Before(wantDeadline.Add(-time.Second)) || booking.ExpiresAt.After(wantDeadline.Add(time.Second)) {
			t.Errorf("expires_at = %s, want about %s", booking.ExpiresAt, wantDeadline)
		}

		if !f.slotHeld(t, slot.ID) {
			t.Error("slot must be held after reservation")
		}
	})

	t.Run("rejects an already held slot", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		f.reserve(t, slot.ID)

		_, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
			MenteeID: uuid.NewString(),
			SlotID:   slot.ID,
		})
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})

	t.Run("rejects a slot that has already started", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, -time.Minute)

		_, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
			MenteeID: uuid.NewString(),
			SlotID:   slot.ID,
		})
		assertAppErrorCode(t, err, apperrors.CodeGone)
	})

	t.Run("rejects a missing slot", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
			MenteeID: uuid.NewString(),
			SlotID:   uuid.NewString(),
		})
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
			MenteeID: "not-a-uuid",
			SlotID:   uuid.NewString(),
		})
		assertAppErrorCode(t, err, apperrors.CodeValidation)
	})

	t.Run("exactly one of many concurrent claims wins", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)

		const claimants = 16
		results := make(chan error, claimants)
		var start sync.WaitGroup
		start.Add(1)

		for i := 0; i < claimants; i++ {
			go func() {
				start.Wait()
				_, err := f.svc.Reserve(context.Background(), &model.ReservationRequest{
					MenteeID: uuid.NewString(),
					SlotID:   slot.ID,
				})
				results <- err
			}()
		}
		start.Done()

		wins, conflicts := 0, 0
		for i := 0; i < claimants; i++ {
			err := <-results
			if err == nil {
				wins++
				continue
			}
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Code == apperrors.CodeConflict {
				conflicts++
				continue
			}
			t.Errorf("unexpected error: %v", err)
		}

		if wins != 1 {
			t.Errorf("wins = %d, want exactly 1", wins)
		}
		if conflicts != claimants-1 {
			t.Errorf("conflicts = %d, want %d", conflicts, claimants-1)
		}
		if !f.slotHeld(t, slot.ID) {
			t.Error("slot must be held after the race")
		}
	})
}

func TestBookingService_Confirm(t *testing.T) {
	t.Run("confirms a pending booking", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		confirmed, err := f.svc.Confirm(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}
		if confirmed.Status != model.BookingStatusPaid {
			t.Errorf("status = %s, want paid", confirmed.Status)
		}
		if !f.slotHeld(t, slot.ID) {
			t.Error("slot must stay held after payment")
		}
	})

	t.Run("confirm after deadline settles the hold", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)
		f.forceOverdue(t, booking.ID)

		_, err := f.svc.Confirm(context.Background(), booking.ID)
		assertAppErrorCode(t, err, apperrors.CodeGone)

		settled, err := f.svc.GetByID(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if settled.Status != model.BookingStatusExpired {
			t.Errorf("status = %s, want expired", settled.Status)
		}
		if f.slotHeld(t, slot.ID) {
			t.Error("slot must be free after lazy expiry")
		}
	})

	t.Run("second confirm fails and charges nothing twice", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if _, err := f.svc.Confirm(context.Background(), booking.ID); err != nil {
			t.Fatalf("first Confirm() error = %v", err)
		}

		_, err := f.svc.Confirm(context.Background(), booking.ID)
		assertAppErrorCode(t, err, apperrors.CodeGone)

		got, err := f.svc.GetByID(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Status != model.BookingStatusPaid {
			t.Errorf("status = %s, want paid", got.Status)
		}
		if !f.slotHeld(t, slot.ID) {
			t.Error("slot must stay held after the rejected confirm")
		}

		paidEvents := 0
		for _, ev := range f.publisher.captured() {
			if ev == "booking.paid" {
				paidEvents++
			}
		}
		if paidEvents != 1 {
			t.Errorf("paid events = %d, want 1", paidEvents)
		}
	})

	t.Run("confirm of a cancelled booking fails", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if err := f.svc.Cancel(context.Background(), booking.ID, booking.MenteeID); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}

		_, err := f.svc.Confirm(context.Background(), booking.ID)
		assertAppErrorCode(t, err, apperrors.CodeGone)
	})

	t.Run("confirm of a missing booking fails", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Confirm(context.Background(), uuid.NewString())
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})
}

func TestBookingService_Cancel(t *testing.T) {
	t.Run("mentee cancels and the slot frees up", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if err := f.svc.Cancel(context.Background(), booking.ID, booking.MenteeID); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}

		settled, err := f.svc.GetByID(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if settled.Status != model.BookingStatusCancelled {
			t.Errorf("status = %s, want cancelled", settled.Status)
		}
		if f.slotHeld(t, slot.ID) {
			t.Error("slot must be free after cancellation")
		}
	})

	t.Run("mentor may cancel", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if err := f.svc.Cancel(context.Background(), booking.ID, booking.MentorID); err != nil {
			t.Fatalf("Cancel() by mentor error = %v", err)
		}
	})

	t.Run("strangers may not cancel", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		err := f.svc.Cancel(context.Background(), booking.ID, uuid.NewString())
		assertAppErrorCode(t, err, apperrors.CodeForbidden)
	})

	t.Run("cancelling twice is a no-op", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if err := f.svc.Cancel(context.Background(), booking.ID, booking.MenteeID); err != nil {
			t.Fatalf("first Cancel() error = %v", err)
		}
		if err := f.svc.Cancel(context.Background(), booking.ID, booking.MenteeID); err != nil {
			t.Fatalf("second Cancel() error = %v", err)
		}
	})

	t.Run("paid bookings cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		slot := f.addSlot(t, 24*time.Hour)
		booking := f.reserve(t, slot.ID)

		if _, err := f.svc.Confirm(context.Background(), booking.ID); err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}

		err := f.svc.Cancel(context.Background(), booking.ID, booking.MenteeID)
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})
}

func TestBookingService_GetByID_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	slot := f.addSlot(t, 24*time.Hour)
	booking := f.reserve(t, slot.ID)
	f.forceOverdue(t, booking.ID)

	got, err := f.svc.GetByID(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != model.BookingStatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if f.slotHeld(t, slot.ID) {
		t.Error("slot must be free after lazy expiry")
	}
}

func TestBookingService_ExpireOverdue(t *testing.T) {
	f := newFixture(t)

	slotA := f.addSlot(t, 24*time.Hour)
	slotB := f.addSlot(t, 25*time.Hour)
	slotC := f.addSlot(t, 26*time.Hour)

	overdueA := f.reserve(t, slotA.ID)
	overdueB := f.reserve(t, slotB.ID)
	fresh := f.reserve(t, slotC.ID)

	f.forceOverdue(t, overdueA.ID)
	f.forceOverdue(t, overdueB.ID)

	expired, err := f.svc.ExpireOverdue(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpireOverdue() error = %v", err)
	}
	if expired != 2 {
		t.Errorf("expired = %d, want 2", expired)
	}

	if f.slotHeld(t, slotA.ID) || f.slotHeld(t, slotB.ID) {
		t.Error("overdue slots must be released")
	}
	if !f.slotHeld(t, slotC.ID) {
		t.Error("fresh booking's slot must stay held")
	}

	got, err := f.svc.GetByID(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != model.BookingStatusPending {
		t.Errorf("fresh booking status = %s, want pending", got.Status)
	}
}

func assertAppErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != wantCode {
		t.Errorf("error code = %s, want %s", appErr.Code, wantCode)
	}
}
