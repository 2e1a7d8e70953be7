// Package ledger implements the reservation ledger: race-free
// capacity accounting for showings and the booking lifecycle built
// on top of it.  All mutations run inside a store transaction keyed
// by showing so that the check-then-increment step is indivisible
// across concurrent attempts on the same showing.
package ledger

import "errors"

// Sentinel errors returned by ledger operations.  Handlers translate
// these into HTTP or broker responses; none of them is retried
// internally.
var (
	// ErrNotFound signals that a showing, seat or booking referenced
	// by the request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSeatUnavailable signals that at least one requested seat
	// already holds an active reservation, or that the showing is not
	// open for booking.  The caller may re-read the seat map and retry.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrCapacityExceeded signals that committing the request would
	// push the showing past its room capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidTransition signals an illegal booking state change,
	// such as cancelling an already completed booking.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrForbidden signals that the booking belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrIdempotencyConflict is returned by stores when inserting a
	// booking whose idempotency key already exists.  The ledger
	// resolves it by returning the original booking; it never escapes
	// to callers.
	ErrIdempotencyConflict = errors.New("idempotency key already used")
)
