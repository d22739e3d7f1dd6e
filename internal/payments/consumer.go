package payments

import (
	"context"
	"errors"
	"time"

	"mentorbook/internal/bookings/service"
	apperrors "mentorbook/pkg/errors"
	"mentorbook/pkg/kafka"
	"mentorbook/pkg/logger"
)

const (
	// EventTypePaymentVerified is the only event type this handler settles.
	EventTypePaymentVerified = "payment.verified"
)

// PaymentEvent is the payload emitted by the payment service once a charge
// clears.
type PaymentEvent struct {
	BookingID  string    `json:"booking_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     int64     `json:"amount"`
	VerifiedAt time.Time `json:"verified_at"`
}

// NewVerificationHandler returns the message handler that confirms bookings
// from verified payments. Error classification drives the consumer: business
// errors are swallowed after logging, transient errors retry, everything else
// goes to the DLQ.
func NewVerificationHandler(svc service.BookingService, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if eventType := msg.GetEventType(); eventType != "" && eventType != EventTypePaymentVerified {
			log.Debug("Skipping payment event", "event_type", eventType)
			return nil
		}

		var event PaymentEvent
		if err := msg.DecodeValue(&event); err != nil {
			return kafka.NewPermanentError("failed to decode payment event", err)
		}
		if event.BookingID == "" {
			return kafka.NewPermanentError("payment event has no booking_id", nil)
		}

		booking, err := svc.Confirm(ctx, event.BookingID)
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				switch appErr.Code {
				case apperrors.CodeGone:
					// The hold is gone: it lapsed, was cancelled, or an earlier
					// delivery already settled it. The payment service owns any
					// refund for late charges.
					log.Warn("Payment verified for a booking that is no longer pending",
						"booking_id", event.BookingID,
						"payment_id", event.PaymentID,
					)
					return kafka.NewBusinessError("booking is no longer pending", err)
				case apperrors.CodeNotFound, apperrors.CodeConflict, apperrors.CodeInvalidInput:
					log.Warn("Payment verification cannot be applied",
						"booking_id", event.BookingID,
						"payment_id", event.PaymentID,
						"error", err,
					)
					return kafka.NewBusinessError("payment cannot settle this booking", err)
				}
			}
			return kafka.NewTransientError("failed to confirm booking", err)
		}

		log.Info("Booking confirmed from payment event",
			"booking_id", booking.ID,
			"payment_id", event.PaymentID,
		)
		return nil
	}
}
