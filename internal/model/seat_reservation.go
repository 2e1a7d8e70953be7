package model

import "time"

// SeatStatus enumerates the states of a seat within a showing.
// "available" is never stored: a seat with no active reservation row
// is available by absence.  The remaining values progress
// selected → reserved → booked as the owning booking advances.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatSelected  SeatStatus = "selected"
	SeatReserved  SeatStatus = "reserved"
	SeatBooked    SeatStatus = "booked"
)

// SeatReservation claims one seat of one showing for a booking.  At
// most one active reservation may exist per (showing, seat) pair; a
// plain unique key on those columns backs this up at the storage
// level because released reservations are deleted rather than kept
// around in a cancelled state.
//
// A selected reservation carries an expiry.  Readers must treat a
// reservation whose ExpiresAt has passed as released immediately,
// even before the reaper physically deletes the row.
//
// Fields:
//  ID         – primary key identifier.
//  BookingID  – owning booking.
//  ShowingID  – showing the seat belongs to.
//  SeatID     – seat being claimed.
//  Row        – denormalized row label of the seat.
//  Number     – denormalized seat number.
//  PriceCents – price paid for this seat in cents.
//  Status     – selected, reserved or booked.
//  ExpiresAt  – hold expiry; nil once booked.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type SeatReservation struct {
	ID         uint64     // seat_reservations.id
	BookingID  uint64     // seat_reservations.booking_id
	ShowingID  uint64     // seat_reservations.showing_id
	SeatID     uint64     // seat_reservations.seat_id
	Row        string     // seat_reservations.row_label
	Number     uint32     // seat_reservations.seat_number
	PriceCents uint32     // seat_reservations.price_cents
	Status     SeatStatus // seat_reservations.status
	ExpiresAt  *time.Time // seat_reservations.expires_at (nullable)
	CreatedAt  time.Time  // seat_reservations.created_at
	UpdatedAt  time.Time  // seat_reservations.updated_at
}

// Active reports whether the reservation still claims its seat at
// the given instant.  Expired holds are released from the reader's
// point of view regardless of whether the reaper has run.
func (r SeatReservation) Active(now time.Time) bool {
	if r.Status == SeatSelected && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return r.Status == SeatSelected || r.Status == SeatReserved || r.Status == SeatBooked
}
