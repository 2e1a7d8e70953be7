package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/model"
)

// ShowingRepo provides read and administration access to showings.
// Capacity-affecting writes never go through this repository; only
// the ledger store mutates bookings_count.
type ShowingRepo struct {
	db *sql.DB
}

// NewShowingRepo returns a ShowingRepo bound to the given database.
func NewShowingRepo(db *sql.DB) *ShowingRepo { return &ShowingRepo{db: db} }

// ShowingListing is a showing enriched with room information and the
// derived remaining-ticket count for listings.
type ShowingListing struct {
	ID               uint64 `json:"id"`
	MovieRef         string `json:"movie_ref"`
	MovieTitle       string `json:"movie_title"`
	RoomName         string `json:"room"`
	StartsAt         string `json:"starts_at"`
	EndsAt           string `json:"ends_at"`
	PriceCents       uint32 `json:"price_cents"`
	Status           string `json:"status"`
	TotalCapacity    uint32 `json:"total_capacity"`
	AvailableTickets uint32 `json:"available_tickets"`
}

// ListUpcoming returns scheduled showings ordered by start time with
// remaining tickets derived from the capacity counter.
func (r *ShowingRepo) ListUpcoming(ctx context.Context) ([]ShowingListing, error) {
	const q = `SELECT s.id, s.movie_ref, s.movie_title, rm.name, s.starts_at, s.ends_at,
	                  s.price_cents, s.status, rm.capacity, s.bookings_count
	           FROM showings s
	           JOIN rooms rm ON rm.id = s.room_id
	           WHERE s.status = 'scheduled'
	           ORDER BY s.starts_at`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	listings := make([]ShowingListing, 0)
	for rows.Next() {
		var l ShowingListing
		var starts, ends sql.NullTime
		var capacity, booked uint32
		if err := rows.Scan(&l.ID, &l.MovieRef, &l.MovieTitle, &l.RoomName, &starts, &ends,
			&l.PriceCents, &l.Status, &capacity, &booked); err != nil {
			return nil, err
		}
		if starts.Valid {
			l.StartsAt = starts.Time.UTC().Format(time.RFC3339)
		}
		if ends.Valid {
			l.EndsAt = ends.Time.UTC().Format(time.RFC3339)
		}
		l.TotalCapacity = capacity
		if booked < capacity {
			l.AvailableTickets = capacity - booked
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Create inserts a showing and populates its generated ID.
func (r *ShowingRepo) Create(ctx context.Context, s *model.Showing) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO showings (room_id, movie_ref, movie_title, starts_at, ends_at, price_cents, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RoomID, s.MovieRef, s.MovieTitle, s.StartsAt.UTC(), s.EndsAt.UTC(), s.PriceCents, s.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// CancelShowing marks a scheduled showing cancelled.  Existing
// bookings are not touched here; callers cancel them through the
// ledger so seats are released and counters stay consistent.
func (r *ShowingRepo) CancelShowing(ctx context.Context, showingID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE showings SET status = 'cancelled' WHERE id = ? AND status = 'scheduled'`,
		showingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, scanErr := r.GetByID(ctx, showingID); scanErr != nil {
			return scanErr
		}
		return fmt.Errorf("%w: showing not cancellable", ledger.ErrInvalidTransition)
	}
	return nil
}

// GetByID loads a single showing.
func (r *ShowingRepo) GetByID(ctx context.Context, showingID uint64) (*model.Showing, error) {
	const q = `SELECT id, room_id, movie_ref, movie_title, starts_at, ends_at,
	                  price_cents, status, bookings_count, created_at, updated_at
	           FROM showings WHERE id = ?`
	var s model.Showing
	err := r.db.QueryRowContext(ctx, q, showingID).Scan(
		&s.ID, &s.RoomID, &s.MovieRef, &s.MovieTitle, &s.StartsAt, &s.EndsAt,
		&s.PriceCents, &s.Status, &s.BookingsCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: showing", ledger.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}
