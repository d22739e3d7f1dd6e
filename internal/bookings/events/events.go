package events

import (
	"context"
	"time"

	"mentorbook/pkg/kafka"
	"mentorbook/pkg/logger"
	"mentorbook/pkg/model"
)

const (
	TypeBookingCreated   = "booking.created"
	TypeBookingPaid      = "booking.paid"
	TypeBookingExpired   = "booking.expired"
	TypeBookingCancelled = "booking.cancelled"

	source = "mentorbook-reservations"
)

// BookingEvent is the payload published on every booking lifecycle change.
type BookingEvent struct {
	BookingID    string              `json:"booking_id"`
	MenteeID     string              `json:"mentee_id"`
	MentorID     string              `json:"mentor_id"`
	SlotID       string              `json:"slot_id"`
	Status       model.BookingStatus `json:"status"`
	SessionPrice int64               `json:"session_price"`
	ExpiresAt    time.Time           `json:"expires_at"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// Publisher emits booking lifecycle events. Publishing is best effort: the
// state change has already committed by the time an event goes out.
type Publisher interface {
	Publish(ctx context.Context, eventType string, booking *model.Booking) error
}

type kafkaProducer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type KafkaPublisher struct {
	producer kafkaProducer
	log      *logger.Logger
}

func NewKafkaPublisher(producer kafkaProducer, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		log:      log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, booking *model.Booking) error {
	event := BookingEvent{
		BookingID:    booking.ID,
		MenteeID:     booking.MenteeID,
		MentorID:     booking.MentorID,
		SlotID:       booking.SlotID,
		Status:       booking.Status,
		SessionPrice: booking.SessionPrice,
		ExpiresAt:    booking.ExpiresAt,
		OccurredAt:   time.Now().UTC(),
	}

	// Keyed by booking ID so consumers see one booking's events in order.
	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithValue(event).
		WithEventType(eventType).
		WithSource(source).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		return err
	}

	p.log.Debug("Booking event published",
		"event_type", eventType,
		"booking_id", booking.ID,
	)
	return nil
}

// NopPublisher drops events. Used in tests and when Kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, booking *model.Booking) error {
	return nil
}
