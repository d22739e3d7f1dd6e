package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrNotPending means a status-changing write missed because the booking
	// already reached a terminal state.
	ErrNotPending = errors.New("booking is not pending")

	// ErrHoldExpired means the booking is still pending in storage but its
	// payment deadline has passed.
	ErrHoldExpired = errors.New("booking hold has expired")

	// ErrActiveExists is the unique-index backstop: the slot already carries a
	// pending or paid booking.
	ErrActiveExists = errors.New("slot already has an active booking")
)
