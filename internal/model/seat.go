package model

import "time"

// Seat describes a physical seat in a room.  Seats are uniquely
// identified by their room, row label and number, and are immutable
// once the seating chart for the room has been generated.  Inactive
// seats (maintenance, broken) never appear as reservable.
//
// Fields:
//  ID           – primary key identifier.
//  RoomID       – room to which this seat belongs.
//  Row          – letter or string designating the row.
//  Number       – number of the seat within the row.
//  SeatType     – type of seat (standard, premium, vip).
//  IsAccessible – wheelchair accessible.
//  IsActive     – whether the seat can be sold.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Seat struct {
	ID           uint64    // seats.id
	RoomID       uint64    // seats.room_id
	Row          string    // seats.row_label
	Number       uint32    // seats.seat_number
	SeatType     string    // seats.seat_type
	IsAccessible bool      // seats.is_accessible
	IsActive     bool      // seats.is_active
	CreatedAt    time.Time // seats.created_at
	UpdatedAt    time.Time // seats.updated_at
}

// Seat types stored in seats.seat_type.
const (
	SeatTypeStandard = "standard"
	SeatTypePremium  = "premium"
	SeatTypeVIP      = "vip"
)
