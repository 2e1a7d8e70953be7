package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// bookingTransitions maps each state to the set of states it may
// legally move to.  cancelled and completed are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
}

// CanTransitionTo reports whether a booking in the receiver state may
// move to the target state.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Booking aggregates one or more seat reservations made by a user
// for a single showing.  A booking is created pending (hold flow) or
// confirmed (direct reservation); confirmation always happens in the
// same transaction that commits the seats and the capacity counter.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – user who made the booking.
//  ShowingID       – showing being booked.
//  BookingNumber   – unique human-facing reference.
//  Status          – pending, confirmed, cancelled or completed.
//  TotalPriceCents – total price in cents for all seats.
//  TicketCount     – number of seats in the booking.
//  IdempotencyKey  – client-supplied dedup key (nullable).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Booking struct {
	ID              uint64        // bookings.id
	UserID          uint64        // bookings.user_id
	ShowingID       uint64        // bookings.showing_id
	BookingNumber   string        // bookings.booking_number
	Status          BookingStatus // bookings.status
	TotalPriceCents uint32        // bookings.total_price_cents
	TicketCount     uint32        // bookings.ticket_count
	IdempotencyKey  *string       // bookings.idempotency_key (nullable)
	CreatedAt       time.Time     // bookings.created_at
	UpdatedAt       time.Time     // bookings.updated_at
}
