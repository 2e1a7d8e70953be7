package repository

import (
	"context"
	"time"

	"github.com/movaght/cinema-booking/internal/model"
)

// Maintenance operations run by the background scheduler.  Each runs
// in its own transaction; none of them is latency sensitive.  Readers
// already treat expired holds as released, so reaping only has to
// happen before a seat could be handed to two claimants — which the
// per-showing ledger transaction guarantees independently by reaping
// inline before every commit.

// ReapExpiredHolds deletes every expired selected reservation and
// cancels pending bookings left with no seats.  The deleted
// reservations are returned, marked available, so the caller can
// broadcast the released seats.
func (s *Store) ReapExpiredHolds(ctx context.Context, now time.Time) ([]model.SeatReservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	expired, err := queryReservations(ctx, tx,
		`SELECT `+reservationCols+` FROM seat_reservations
		 WHERE status = 'selected' AND expires_at <= ?
		 ORDER BY showing_id, row_label, seat_number`, now.UTC())
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return []model.SeatReservation{}, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seat_reservations WHERE status = 'selected' AND expires_at <= ?`,
		now.UTC()); err != nil {
		return nil, err
	}
	// Pending bookings whose last hold just expired are dead.
	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings b
		 LEFT JOIN seat_reservations sr ON sr.booking_id = b.id
		 SET b.status = 'cancelled'
		 WHERE b.status = 'pending' AND sr.id IS NULL`); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	for i := range expired {
		expired[i].Status = model.SeatAvailable
		expired[i].ExpiresAt = nil
	}
	return expired, nil
}

// CompleteElapsed applies the time-driven transitions: confirmed
// bookings of started showings become completed, and showings past
// their end time become completed.  Neither touches capacity.
func (s *Store) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings b
		 JOIN showings sh ON sh.id = b.showing_id
		 SET b.status = 'completed'
		 WHERE b.status = 'confirmed' AND sh.starts_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	bookings, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE showings SET status = 'completed'
		 WHERE status = 'scheduled' AND ends_at <= ?`, now.UTC()); err != nil {
		return bookings, err
	}
	return bookings, nil
}

// ReconcileBookingsCounts rewrites each showing's denormalized
// counter from the reservation records, whose uniqueness constraint
// is ground truth.  Returns the number of showings corrected.
func (s *Store) ReconcileBookingsCounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE showings sh
		 SET sh.bookings_count = (
		     SELECT COUNT(*) FROM seat_reservations sr
		     JOIN bookings b ON b.id = sr.booking_id
		     WHERE sr.showing_id = sh.id
		       AND sr.status = 'booked'
		       AND b.status IN ('confirmed', 'completed')
		 )
		 WHERE sh.bookings_count <> (
		     SELECT COUNT(*) FROM seat_reservations sr
		     JOIN bookings b ON b.id = sr.booking_id
		     WHERE sr.showing_id = sh.id
		       AND sr.status = 'booked'
		       AND b.status IN ('confirmed', 'completed')
		 )`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
