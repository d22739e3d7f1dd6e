package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	ErrSlotHeld = errors.New("slot has an active booking")

	ErrOverlap = errors.New("slot overlaps an existing slot for this mentor")
)
