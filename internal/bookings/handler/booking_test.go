package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mentorbook/internal/bookings/service"
	apperrors "mentorbook/pkg/errors"
	httputil "mentorbook/pkg/http"
	"mentorbook/pkg/logger"
	"mentorbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type stubBookingService struct {
	service.BookingService
	reserveFn func(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error)
	confirmFn func(ctx context.Context, id string) (*model.Booking, error)
	cancelFn  func(ctx context.Context, id, actorID string) error
	getByIDFn func(ctx context.Context, id string) (*model.Booking, error)
}

func (s *stubBookingService) Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error) {
	return s.reserveFn(ctx, req)
}

func (s *stubBookingService) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	return s.confirmFn(ctx, id)
}

func (s *stubBookingService) Cancel(ctx context.Context, id, actorID string) error {
	return s.cancelFn(ctx, id, actorID)
}

func (s *stubBookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.getByIDFn(ctx, id)
}

func newTestRouter(svc service.BookingService) *httprouter.Router {
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard})
	router := httprouter.New()
	NewBookingHandler(svc, log).RegisterRoutes(router)
	return router
}

func TestBookingHandler_Reserve(t *testing.T) {
	t.Run("returns 201 with the booking", func(t *testing.T) {
		svc := &stubBookingService{
			reserveFn: func(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error) {
				return &model.Booking{ID: "b1", Status: model.BookingStatusPending, SlotID: req.SlotID}, nil
			},
		}
		router := newTestRouter(svc)

		body := `{"mentee_id":"2c9e5a7b-1f3d-4e6a-9b8c-0d1e2f3a4b5c","slot_id":"7f8b6c3e-9a1d-4f2b-8c5e-1d2e3f4a5b6c"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}

		var resp httputil.SuccessResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	})

	t.Run("returns 400 for malformed JSON", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader("{oops")))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("maps service errors onto status codes", func(t *testing.T) {
		tests := []struct {
			name       string
			serviceErr error
			wantStatus int
		}{
			{"held slot", apperrors.Conflict("Slot is already booked"), http.StatusConflict},
			{"past slot", apperrors.Gone("Slot start time has passed"), http.StatusGone},
			{"missing slot", apperrors.NotFoundWithID("Slot", "s1"), http.StatusNotFound},
			{"bad input", apperrors.Validation("Reservation validation failed", nil), http.StatusUnprocessableEntity},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := &stubBookingService{
					reserveFn: func(ctx context.Context, req *model.ReservationRequest) (*model.Booking, error) {
						return nil, tt.serviceErr
					},
				}
				router := newTestRouter(svc)

				body := `{"mentee_id":"a","slot_id":"b"}`
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)))

				if rec.Code != tt.wantStatus {
					t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
				}
			})
		}
	})
}

func TestBookingHandler_Confirm(t *testing.T) {
	t.Run("returns the paid booking", func(t *testing.T) {
		svc := &stubBookingService{
			confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
				return &model.Booking{ID: id, Status: model.BookingStatusPaid}, nil
			},
		}
		router := newTestRouter(svc)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/confirm", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("returns 410 for a lapsed hold", func(t *testing.T) {
		svc := &stubBookingService{
			confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
				return nil, apperrors.Gone("Booking hold has expired")
			},
		}
		router := newTestRouter(svc)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/confirm", nil))

		if rec.Code != http.StatusGone {
			t.Fatalf("status = %d, want 410", rec.Code)
		}
	})
}

func TestBookingHandler_Cancel(t *testing.T) {
	t.Run("requires the actor header", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/cancel", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("returns 204 on success", func(t *testing.T) {
		var gotActor string
		svc := &stubBookingService{
			cancelFn: func(ctx context.Context, id, actorID string) error {
				gotActor = actorID
				return nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/cancel", nil)
		req.Header.Set("X-Actor-ID", "mentee-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if gotActor != "mentee-1" {
			t.Errorf("actor = %s, want mentee-1", gotActor)
		}
	})

	t.Run("returns 403 for a stranger", func(t *testing.T) {
		svc := &stubBookingService{
			cancelFn: func(ctx context.Context, id, actorID string) error {
				return apperrors.Forbidden("Only the mentee or the mentor may cancel this booking")
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/cancel", nil)
		req.Header.Set("X-Actor-ID", "someone-else")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})
}

func TestBookingHandler_GetAll_InvalidStatus(t *testing.T) {
	router := newTestRouter(&stubBookingService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?status=bogus", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
