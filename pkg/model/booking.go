package model

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusPaid || s == BookingStatusExpired || s == BookingStatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving from s to
// target. Only pending has outgoing edges.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	if s != BookingStatusPending {
		return false
	}
	switch target {
	case BookingStatusPaid, BookingStatusExpired, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is a mentee's claim on an availability slot. The session price is
// copied from the slot at reservation time so later slot edits cannot change
// what the mentee owes.
type Booking struct {
	ID           string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	MenteeID     string        `json:"mentee_id" bson:"mentee_id" validate:"required,uuid4"`
	MentorID     string        `json:"mentor_id" bson:"mentor_id" validate:"required,uuid4"`
	SlotID       string        `json:"slot_id" bson:"slot_id" validate:"required,uuid4"`
	Status       BookingStatus `json:"status" bson:"status" validate:"required,oneof=pending paid expired cancelled"`
	SessionPrice int64         `json:"session_price" bson:"session_price" validate:"min=0"`
	ExpiresAt    time.Time     `json:"expires_at" bson:"expires_at" validate:"required"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt    time.Time     `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// ReservationRequest is the payload for claiming a slot.
type ReservationRequest struct {
	MenteeID string `json:"mentee_id" validate:"required,uuid4"`
	SlotID   string `json:"slot_id" validate:"required,uuid4"`
}

// Overdue reports whether a pending booking's hold window has lapsed.
// ExpiresAt is set once at creation and never extended.
func (b *Booking) Overdue(now time.Time) bool {
	return b.Status == BookingStatusPending && !now.Before(b.ExpiresAt)
}

// Active reports whether the booking currently occupies its slot.
func (b *Booking) Active() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaid
}
