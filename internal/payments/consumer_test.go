package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"mentorbook/internal/bookings/service"
	apperrors "mentorbook/pkg/errors"
	"mentorbook/pkg/kafka"
	"mentorbook/pkg/logger"
	"mentorbook/pkg/model"
)

type stubBookingService struct {
	service.BookingService
	confirmFn func(ctx context.Context, id string) (*model.Booking, error)
	confirmed []string
}

func (s *stubBookingService) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	s.confirmed = append(s.confirmed, id)
	return s.confirmFn(ctx, id)
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Output: io.Discard})
}

func paymentMessage(t *testing.T, eventType string, event PaymentEvent) kafka.Message {
	t.Helper()

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal payment event: %v", err)
	}

	builder := kafka.NewMessage().
		WithKey(event.BookingID).
		WithRawValue(payload)
	if eventType != "" {
		builder = builder.WithEventType(eventType)
	}
	return builder.Build()
}

func TestVerificationHandler_ConfirmsBooking(t *testing.T) {
	svc := &stubBookingService{
		confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: id, Status: model.BookingStatusPaid}, nil
		},
	}
	handler := NewVerificationHandler(svc, testLog())

	msg := paymentMessage(t, EventTypePaymentVerified, PaymentEvent{
		BookingID: "2c9e5a7b-1f3d-4e6a-9b8c-0d1e2f3a4b5c",
		PaymentID: "pay_123",
		Amount:    7500,
	})

	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(svc.confirmed) != 1 || svc.confirmed[0] != "2c9e5a7b-1f3d-4e6a-9b8c-0d1e2f3a4b5c" {
		t.Errorf("confirmed = %v, want the event's booking", svc.confirmed)
	}
}

func TestVerificationHandler_SkipsOtherEventTypes(t *testing.T) {
	svc := &stubBookingService{
		confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
			t.Fatal("Confirm must not be called")
			return nil, nil
		},
	}
	handler := NewVerificationHandler(svc, testLog())

	msg := paymentMessage(t, "payment.refunded", PaymentEvent{BookingID: "x"})

	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func TestVerificationHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		confirmErr error
		wantType   kafka.ErrorType
	}{
		{"expired hold is business", apperrors.Gone("Booking hold has expired"), kafka.ErrorTypeBusiness},
		{"redelivered payment is business", apperrors.Gone("Booking is no longer pending"), kafka.ErrorTypeBusiness},
		{"missing booking is business", apperrors.NotFoundWithID("Booking", "b1"), kafka.ErrorTypeBusiness},
		{"cancelled booking is business", apperrors.Conflict("Booking is already cancelled"), kafka.ErrorTypeBusiness},
		{"storage failure is transient", apperrors.Internal("Failed to update booking", errors.New("socket closed")), kafka.ErrorTypeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBookingService{
				confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
					return nil, tt.confirmErr
				},
			}
			handler := NewVerificationHandler(svc, testLog())

			msg := paymentMessage(t, EventTypePaymentVerified, PaymentEvent{
				BookingID: "2c9e5a7b-1f3d-4e6a-9b8c-0d1e2f3a4b5c",
			})

			err := handler(context.Background(), msg)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := kafka.ClassifyError(err); got != tt.wantType {
				t.Errorf("classification = %v, want %v", got, tt.wantType)
			}
		})
	}
}

func TestVerificationHandler_MalformedPayload(t *testing.T) {
	svc := &stubBookingService{
		confirmFn: func(ctx context.Context, id string) (*model.Booking, error) {
			t.Fatal("Confirm must not be called")
			return nil, nil
		},
	}
	handler := NewVerificationHandler(svc, testLog())

	msg := kafka.NewMessage().
		WithKey("k").
		WithRawValue([]byte("{not json")).
		WithEventType(EventTypePaymentVerified).
		Build()

	err := handler(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := kafka.ClassifyError(err); got != kafka.ErrorTypePermanent {
		t.Errorf("classification = %v, want permanent", got)
	}

	t.Run("missing booking_id", func(t *testing.T) {
		msg := paymentMessage(t, EventTypePaymentVerified, PaymentEvent{PaymentID: "pay_1"})
		err := handler(context.Background(), msg)
		if err == nil {
			t.Fatal("expected error")
		}
		if got := kafka.ClassifyError(err); got != kafka.ErrorTypePermanent {
			t.Errorf("classification = %v, want permanent", got)
		}
	})
}
