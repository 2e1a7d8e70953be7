package model

import "time"

// ShowingStatus enumerates the lifecycle states of a showing.
type ShowingStatus string

const (
	ShowingScheduled ShowingStatus = "scheduled"
	ShowingCancelled ShowingStatus = "cancelled"
	ShowingCompleted ShowingStatus = "completed"
)

// Showing represents a scheduled screening of a movie in a specific
// room at a specific time.  BookingsCount is a denormalized running
// total of confirmed tickets; it is maintained by the reservation
// ledger under a row lock and must never exceed the room capacity.
// The counter is a fast-path cache: the seat_reservations table is
// ground truth and the scheduler periodically reconciles the two.
//
// Fields:
//  ID            – primary key identifier.
//  RoomID        – room where the showing takes place.
//  MovieRef      – opaque reference into the external movie catalog.
//  MovieTitle    – denormalized title for listings.
//  StartsAt      – when the showing begins.
//  EndsAt        – when the showing ends.
//  PriceCents    – ticket price in cents.
//  Status        – scheduled, cancelled or completed.
//  BookingsCount – confirmed tickets sold so far.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Showing struct {
	ID            uint64        // showings.id
	RoomID        uint64        // showings.room_id
	MovieRef      string        // showings.movie_ref
	MovieTitle    string        // showings.movie_title
	StartsAt      time.Time     // showings.starts_at
	EndsAt        time.Time     // showings.ends_at
	PriceCents    uint32        // showings.price_cents
	Status        ShowingStatus // showings.status
	BookingsCount uint32        // showings.bookings_count
	CreatedAt     time.Time     // showings.created_at
	UpdatedAt     time.Time     // showings.updated_at
}
