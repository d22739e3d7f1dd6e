package model

import (
	"time"
)

// AvailabilitySlot is a bookable window published by a mentor. The held flag
// mirrors whether an active (pending or paid) booking exists for the slot; it
// only changes inside the same transaction as the booking it reflects.
type AvailabilitySlot struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	MentorID     string    `json:"mentor_id" bson:"mentor_id" validate:"required,uuid4"`
	StartTime    time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	SessionPrice int64     `json:"session_price" bson:"session_price" validate:"required,min=0"`
	Held         bool      `json:"held" bson:"held"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Overlaps reports whether two half-open [start, end) windows intersect.
func (s *AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// SlotEntry is one window in a batch publish request.
type SlotEntry struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// PublishSlotsRequest creates a batch of slots for one mentor at one price.
// The batch is all or nothing: a single overlapping entry rejects the whole
// request.
type PublishSlotsRequest struct {
	MentorID     string      `json:"mentor_id" validate:"required,uuid4"`
	SessionPrice int64       `json:"session_price" validate:"required,min=0"`
	Slots        []SlotEntry `json:"slots" validate:"required,min=1,dive"`
}

// WeeklyPattern describes a recurring slot template expanded into concrete
// slots for a number of weeks ahead.
type WeeklyPattern struct {
	MentorID     string       `json:"mentor_id" validate:"required,uuid4"`
	Weekday      time.Weekday `json:"weekday" validate:"min=0,max=6"`
	StartOfDay   string       `json:"start_of_day" validate:"required,valid_clock_time"`
	DurationMin  int          `json:"duration_min" validate:"required,min=15,max=480"`
	SessionPrice int64        `json:"session_price" validate:"required,min=0"`
	Weeks        int          `json:"weeks" validate:"required,min=1,max=12"`
	TimeZone     string       `json:"time_zone,omitempty" validate:"omitempty,timezone"`
}
