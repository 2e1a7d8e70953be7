package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/model"
)

// Store is the MySQL implementation of ledger.Store.  Per-showing
// serialization is provided by SELECT ... FOR UPDATE on the showings
// row: every ledger transaction locks the showing before reading any
// state it bases a decision on, so two requests racing for the last
// seat are ordered by the database and exactly one commits.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store bound to the given database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const showingCols = `s.id, s.room_id, s.movie_ref, s.movie_title, s.starts_at, s.ends_at,
       s.price_cents, s.status, s.bookings_count, s.created_at, s.updated_at,
       r.id, r.name, r.capacity, r.has_3d, r.has_imax, r.has_dolby, r.created_at, r.updated_at`

func scanShowing(row *sql.Row) (*model.Showing, *model.Room, error) {
	var sh model.Showing
	var rm model.Room
	err := row.Scan(
		&sh.ID, &sh.RoomID, &sh.MovieRef, &sh.MovieTitle, &sh.StartsAt, &sh.EndsAt,
		&sh.PriceCents, &sh.Status, &sh.BookingsCount, &sh.CreatedAt, &sh.UpdatedAt,
		&rm.ID, &rm.Name, &rm.Capacity, &rm.Has3D, &rm.HasIMAX, &rm.HasDolby, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: showing", ledger.ErrNotFound)
		}
		return nil, nil, err
	}
	return &sh, &rm, nil
}

// ShowingByID loads a showing and its room without locking.
func (s *Store) ShowingByID(ctx context.Context, showingID uint64) (*model.Showing, *model.Room, error) {
	const q = `SELECT ` + showingCols + `
	           FROM showings s JOIN rooms r ON r.id = s.room_id
	           WHERE s.id = ?`
	return scanShowing(s.db.QueryRowContext(ctx, q, showingID))
}

const bookingCols = `id, user_id, showing_id, booking_number, status, total_price_cents,
       ticket_count, idempotency_key, created_at, updated_at`

func scanBooking(row *sql.Row) (*model.Booking, error) {
	var b model.Booking
	var key sql.NullString
	err := row.Scan(
		&b.ID, &b.UserID, &b.ShowingID, &b.BookingNumber, &b.Status, &b.TotalPriceCents,
		&b.TicketCount, &key, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking", ledger.ErrNotFound)
		}
		return nil, err
	}
	if key.Valid {
		k := key.String
		b.IdempotencyKey = &k
	}
	return &b, nil
}

// BookingByID loads a booking without locking.
func (s *Store) BookingByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id = ?`
	return scanBooking(s.db.QueryRowContext(ctx, q, bookingID))
}

// BookingByIdempotencyKey returns the booking committed under key
// along with its seat reservations.
func (s *Store) BookingByIdempotencyKey(ctx context.Context, key string) (*model.Booking, []model.SeatReservation, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE idempotency_key = ?`
	b, err := scanBooking(s.db.QueryRowContext(ctx, q, key))
	if err != nil {
		return nil, nil, err
	}
	seats, err := queryReservations(ctx, s.db,
		`SELECT `+reservationCols+` FROM seat_reservations
		 WHERE booking_id = ? ORDER BY row_label, seat_number`, b.ID)
	if err != nil {
		return nil, nil, err
	}
	return b, seats, nil
}

// SeatsByRoom lists the active seats of a room ordered by row then number.
func (s *Store) SeatsByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	const q = `SELECT ` + seatCols + ` FROM seats
	           WHERE room_id = ? AND is_active = 1
	           ORDER BY row_label, seat_number`
	return querySeats(ctx, s.db, q, roomID)
}

// ActiveReservationsByShowing lists live reservations of a showing.
// The expiry filter runs in SQL so callers see expired holds as
// released even before the reaper deletes them.
func (s *Store) ActiveReservationsByShowing(ctx context.Context, showingID uint64, now time.Time) ([]model.SeatReservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM seat_reservations
	           WHERE showing_id = ?
	             AND NOT (status = 'selected' AND expires_at <= ?)
	           ORDER BY row_label, seat_number`
	return queryReservations(ctx, s.db, q, showingID, now.UTC())
}

// InTx begins a transaction and hands a ledger.Tx to fn.  The
// showing row lock is taken by the first ShowingForUpdate call
// inside fn; the transaction is rolled back unless fn succeeds.
func (s *Store) InTx(ctx context.Context, showingID uint64, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// txStore implements ledger.Tx over one open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) ShowingForUpdate(ctx context.Context, showingID uint64) (*model.Showing, *model.Room, error) {
	const q = `SELECT ` + showingCols + `
	           FROM showings s JOIN rooms r ON r.id = s.room_id
	           WHERE s.id = ? FOR UPDATE`
	return scanShowing(t.tx.QueryRowContext(ctx, q, showingID))
}

func (t *txStore) ReapExpired(ctx context.Context, showingID uint64, now time.Time) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM seat_reservations
		 WHERE showing_id = ? AND status = 'selected' AND expires_at <= ?`,
		showingID, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *txStore) ActiveSeatIDs(ctx context.Context, showingID uint64, now time.Time) (map[uint64]model.SeatStatus, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seat_id, status FROM seat_reservations
		 WHERE showing_id = ? AND NOT (status = 'selected' AND expires_at <= ?)`,
		showingID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	taken := make(map[uint64]model.SeatStatus)
	for rows.Next() {
		var id uint64
		var st model.SeatStatus
		if err := rows.Scan(&id, &st); err != nil {
			return nil, err
		}
		taken[id] = st
	}
	return taken, rows.Err()
}

func (t *txStore) SeatsByIDs(ctx context.Context, roomID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return []model.Seat{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seatIDs)), ",")
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, roomID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	q := `SELECT ` + seatCols + ` FROM seats
	      WHERE room_id = ? AND is_active = 1 AND id IN (` + placeholders + `)
	      ORDER BY row_label, seat_number`
	return querySeats(ctx, t.tx, q, args...)
}

func (t *txStore) FreeSeats(ctx context.Context, showingID, roomID uint64, limit int, now time.Time) ([]model.Seat, error) {
	const q = `SELECT st.id, st.room_id, st.row_label, st.seat_number, st.seat_type,
	                  st.is_accessible, st.is_active, st.created_at, st.updated_at
	           FROM seats st
	           LEFT JOIN seat_reservations sr
	             ON sr.showing_id = ? AND sr.seat_id = st.id
	            AND NOT (sr.status = 'selected' AND sr.expires_at <= ?)
	           WHERE st.room_id = ? AND st.is_active = 1 AND sr.id IS NULL
	           ORDER BY st.row_label, st.seat_number
	           LIMIT ?`
	return querySeats(ctx, t.tx, q, showingID, now.UTC(), roomID, limit)
}

func (t *txStore) InsertBooking(ctx context.Context, b *model.Booking) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, showing_id, booking_number, status,
		                       total_price_cents, ticket_count, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.ShowingID, b.BookingNumber, b.Status,
		b.TotalPriceCents, b.TicketCount, b.IdempotencyKey)
	if err != nil {
		if isDuplicateKey(err, "uq_bookings_idempotency_key") {
			return ledger.ErrIdempotencyConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

func (t *txStore) InsertSeatReservations(ctx context.Context, reservations []model.SeatReservation) error {
	if len(reservations) == 0 {
		return nil
	}
	query := `INSERT INTO seat_reservations
	          (booking_id, showing_id, seat_id, row_label, seat_number, price_cents, status, expires_at) VALUES `
	args := make([]interface{}, 0, len(reservations)*8)
	for i, r := range reservations {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		var expires interface{}
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.UTC()
		}
		args = append(args, r.BookingID, r.ShowingID, r.SeatID, r.Row, r.Number, r.PriceCents, r.Status, expires)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		// The unique key on (showing_id, seat_id) is the storage-level
		// backstop behind the in-transaction availability check.
		if isDuplicateKey(err, "uq_seat_reservations_showing_seat") {
			return fmt.Errorf("%w: seat already reserved", ledger.ErrSeatUnavailable)
		}
		return err
	}
	return nil
}

func (t *txStore) AddBookingsCount(ctx context.Context, showingID uint64, delta int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE showings SET bookings_count = bookings_count + ? WHERE id = ?`,
		delta, showingID)
	return err
}

func (t *txStore) BookingForUpdate(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id = ? FOR UPDATE`
	return scanBooking(t.tx.QueryRowContext(ctx, q, bookingID))
}

func (t *txStore) ReservationsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatReservation, error) {
	return queryReservations(ctx, t.tx,
		`SELECT `+reservationCols+` FROM seat_reservations
		 WHERE booking_id = ? ORDER BY row_label, seat_number`, bookingID)
}

func (t *txStore) UpdateBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ?`, status, bookingID)
	return err
}

func (t *txStore) MarkReservationsBooked(ctx context.Context, bookingID uint64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE seat_reservations SET status = 'booked', expires_at = NULL WHERE booking_id = ?`,
		bookingID)
	return err
}

func (t *txStore) DeleteReservationsByBooking(ctx context.Context, bookingID uint64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM seat_reservations WHERE booking_id = ?`, bookingID)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const seatCols = `id, room_id, row_label, seat_number, seat_type, is_accessible, is_active, created_at, updated_at`

func querySeats(ctx context.Context, q querier, query string, args ...interface{}) ([]model.Seat, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Row, &s.Number, &s.SeatType,
			&s.IsAccessible, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

const reservationCols = `id, booking_id, showing_id, seat_id, row_label, seat_number,
       price_cents, status, expires_at, created_at, updated_at`

func queryReservations(ctx context.Context, q querier, query string, args ...interface{}) ([]model.SeatReservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SeatReservation, 0)
	for rows.Next() {
		var r model.SeatReservation
		var expires sql.NullTime
		if err := rows.Scan(&r.ID, &r.BookingID, &r.ShowingID, &r.SeatID, &r.Row, &r.Number,
			&r.PriceCents, &r.Status, &expires, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			r.ExpiresAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isDuplicateKey reports whether err is a MySQL 1062 duplicate entry
// on the named unique key.
func isDuplicateKey(err error, keyName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "1062") && strings.Contains(msg, keyName)
}
