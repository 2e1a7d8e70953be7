package model

import "time"

// Room represents a screening room within the cinema.  Every room
// owns a fixed seating layout generated once at setup time; the
// capacity column is the authoritative upper bound for how many
// seats a showing in this room can ever sell.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the room.
//  Capacity  – total number of seats.
//  Has3D     – room supports 3D projection.
//  HasIMAX   – room supports IMAX projection.
//  HasDolby  – room supports Dolby sound.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Room struct {
	ID        uint64    // rooms.id
	Name      string    // rooms.name
	Capacity  uint32    // rooms.capacity
	Has3D     bool      // rooms.has_3d
	HasIMAX   bool      // rooms.has_imax
	HasDolby  bool      // rooms.has_dolby
	CreatedAt time.Time // rooms.created_at
	UpdatedAt time.Time // rooms.updated_at
}
