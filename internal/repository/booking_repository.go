package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/movaght/cinema-booking/internal/ledger"
)

// BookingRepo provides read access to bookings for listing and
// display.  All writes to bookings go through the ledger store.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingDetail is a booking with its showing context and seats,
// shaped for API responses.
type BookingDetail struct {
	ID              uint64       `json:"id"`
	BookingNumber   string       `json:"booking_number"`
	ShowingID       uint64       `json:"showing_id"`
	MovieTitle      string       `json:"movie_title"`
	RoomName        string       `json:"room"`
	StartsAt        *string      `json:"starts_at"`
	Status          string       `json:"status"`
	TotalPriceCents uint32       `json:"total_price_cents"`
	TicketCount     uint32       `json:"ticket_count"`
	Seats           []BookedSeat `json:"seats"`
}

// BookedSeat identifies one seat inside a booking detail.
type BookedSeat struct {
	SeatID uint64 `json:"seat_id"`
	Row    string `json:"row"`
	Number uint32 `json:"number"`
}

// GetByID loads one booking with its seats.  Ownership is enforced
// here so a booking id can never be probed across users.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID, userID uint64) (*BookingDetail, error) {
	const q = `SELECT b.id, b.booking_number, b.showing_id, sh.movie_title, rm.name,
	                  sh.starts_at, b.status, b.total_price_cents, b.ticket_count
	           FROM bookings b
	           JOIN showings sh ON sh.id = b.showing_id
	           JOIN rooms rm ON rm.id = sh.room_id
	           WHERE b.id = ? AND b.user_id = ?`
	var d BookingDetail
	var starts sql.NullTime
	err := r.db.QueryRowContext(ctx, q, bookingID, userID).Scan(
		&d.ID, &d.BookingNumber, &d.ShowingID, &d.MovieTitle, &d.RoomName,
		&starts, &d.Status, &d.TotalPriceCents, &d.TicketCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking", ledger.ErrNotFound)
		}
		return nil, err
	}
	if starts.Valid {
		iso := starts.Time.UTC().Format(time.RFC3339)
		d.StartsAt = &iso
	}
	d.Seats = []BookedSeat{}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id, row_label, seat_number FROM seat_reservations
		 WHERE booking_id = ? ORDER BY row_label, seat_number`, d.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat BookedSeat
		if err := rows.Scan(&seat.SeatID, &seat.Row, &seat.Number); err != nil {
			return nil, err
		}
		d.Seats = append(d.Seats, seat)
	}
	return &d, rows.Err()
}

// ListByUser returns the user's bookings, newest first, each with
// its seats ordered by row and number.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
	const q = `SELECT b.id, b.booking_number, b.showing_id, sh.movie_title, rm.name,
	                  sh.starts_at, b.status, b.total_price_cents, b.ticket_count
	           FROM bookings b
	           JOIN showings sh ON sh.id = b.showing_id
	           JOIN rooms rm ON rm.id = sh.room_id
	           WHERE b.user_id = ?
	           ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]BookingDetail, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var d BookingDetail
		var starts sql.NullTime
		if err := rows.Scan(&d.ID, &d.BookingNumber, &d.ShowingID, &d.MovieTitle, &d.RoomName,
			&starts, &d.Status, &d.TotalPriceCents, &d.TicketCount); err != nil {
			return nil, err
		}
		if starts.Valid {
			iso := starts.Time.UTC().Format(time.RFC3339)
			d.StartsAt = &iso
		}
		d.Seats = []BookedSeat{}
		index[d.ID] = len(details)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}
	// Fetch seats for all bookings in one query.
	ids := make([]interface{}, 0, len(details))
	placeholders := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ID)
		placeholders = append(placeholders, "?")
	}
	seatQ := `SELECT booking_id, seat_id, row_label, seat_number
	          FROM seat_reservations
	          WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
	          ORDER BY booking_id, row_label, seat_number`
	srows, err := r.db.QueryContext(ctx, seatQ, ids...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var bookingID uint64
		var seat BookedSeat
		if err := srows.Scan(&bookingID, &seat.SeatID, &seat.Row, &seat.Number); err != nil {
			return nil, err
		}
		if idx, ok := index[bookingID]; ok {
			details[idx].Seats = append(details[idx].Seats, seat)
		}
	}
	return details, srows.Err()
}
