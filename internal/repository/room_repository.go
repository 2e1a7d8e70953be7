package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/model"
)

// RoomRepo manages rooms and their one-time seating chart
// generation.  Seats are immutable after generation; the room's
// capacity column is set to the number of seats created.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// GetByID loads a single room.
func (r *RoomRepo) GetByID(ctx context.Context, roomID uint64) (*model.Room, error) {
	const q = `SELECT id, name, capacity, has_3d, has_imax, has_dolby, created_at, updated_at
	           FROM rooms WHERE id = ?`
	var rm model.Room
	err := r.db.QueryRowContext(ctx, q, roomID).Scan(
		&rm.ID, &rm.Name, &rm.Capacity, &rm.Has3D, &rm.HasIMAX, &rm.HasDolby,
		&rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: room", ledger.ErrNotFound)
		}
		return nil, err
	}
	return &rm, nil
}

// CreateWithLayout inserts a room and generates its seating chart in
// one transaction: rows x cols seats labelled A1..  The first row is
// marked accessible and the last rowsPremium rows are premium.  The
// room capacity is set to the seat count.
func (r *RoomRepo) CreateWithLayout(ctx context.Context, room *model.Room, rows, cols, rowsPremium int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid layout %dx%d", rows, cols)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	room.Capacity = uint32(rows * cols)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, capacity, has_3d, has_imax, has_dolby) VALUES (?, ?, ?, ?, ?)`,
		room.Name, room.Capacity, room.Has3D, room.HasIMAX, room.HasDolby)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = uint64(id)

	query := `INSERT INTO seats (room_id, row_label, seat_number, seat_type, is_accessible, is_active) VALUES `
	args := make([]interface{}, 0, rows*cols*6)
	first := true
	for row := 0; row < rows; row++ {
		label := rowLabel(row)
		seatType := model.SeatTypeStandard
		if row >= rows-rowsPremium {
			seatType = model.SeatTypePremium
		}
		for num := 1; num <= cols; num++ {
			if !first {
				query += ","
			}
			first = false
			query += "(?, ?, ?, ?, ?, ?)"
			args = append(args, room.ID, label, num, seatType, row == 0, true)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// rowLabel converts a zero-based row index to its letter label:
// 0 -> A, 25 -> Z, 26 -> AA.
func rowLabel(row int) string {
	label := ""
	for row >= 0 {
		label = string(rune('A'+row%26)) + label
		row = row/26 - 1
	}
	return label
}
