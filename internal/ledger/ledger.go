package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/movaght/cinema-booking/internal/model"
)

// Store is the persistence boundary of the ledger.  The SQL
// implementation lives in internal/repository; tests use an
// in-memory implementation with the same atomicity guarantees.
type Store interface {
	// ShowingByID loads a showing and its room.  ErrNotFound when absent.
	ShowingByID(ctx context.Context, showingID uint64) (*model.Showing, *model.Room, error)
	// BookingByID loads a booking without locking.  ErrNotFound when absent.
	BookingByID(ctx context.Context, bookingID uint64) (*model.Booking, error)
	// BookingByIdempotencyKey returns the booking previously committed
	// under the given key, with its reservations, or ErrNotFound.
	BookingByIdempotencyKey(ctx context.Context, key string) (*model.Booking, []model.SeatReservation, error)
	// SeatsByRoom lists the active seats of a room ordered by row then number.
	SeatsByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error)
	// ActiveReservationsByShowing lists reservations that still claim a
	// seat at the given instant; expired holds are filtered out even if
	// not yet reaped.
	ActiveReservationsByShowing(ctx context.Context, showingID uint64, now time.Time) ([]model.SeatReservation, error)

	// InTx runs fn inside a transaction.  All writers of the same
	// showing are serialized against each other: the transaction must
	// take (or be equivalent to) a row lock on the showing before any
	// check performed inside fn is trusted.
	InTx(ctx context.Context, showingID uint64, fn func(Tx) error) error
}

// Tx exposes the mutations available inside a ledger transaction.
type Tx interface {
	ShowingForUpdate(ctx context.Context, showingID uint64) (*model.Showing, *model.Room, error)
	// ReapExpired deletes expired selected holds of the showing and
	// returns how many rows were cleared.
	ReapExpired(ctx context.Context, showingID uint64, now time.Time) (int, error)
	// ActiveSeatIDs maps seat ID to status for every live reservation
	// of the showing.
	ActiveSeatIDs(ctx context.Context, showingID uint64, now time.Time) (map[uint64]model.SeatStatus, error)
	// SeatsByIDs loads active seats of the room by ID, ordered by row
	// then number.  Missing or inactive seats are simply absent from
	// the result.
	SeatsByIDs(ctx context.Context, roomID uint64, seatIDs []uint64) ([]model.Seat, error)
	// FreeSeats returns up to limit active seats of the room with no
	// live reservation for the showing, lowest (row, number) first.
	FreeSeats(ctx context.Context, showingID, roomID uint64, limit int, now time.Time) ([]model.Seat, error)
	// InsertBooking persists a booking and fills in its generated ID.
	// Returns ErrIdempotencyConflict when the idempotency key is taken.
	InsertBooking(ctx context.Context, b *model.Booking) error
	InsertSeatReservations(ctx context.Context, reservations []model.SeatReservation) error
	// AddBookingsCount adjusts the showing's denormalized counter.
	AddBookingsCount(ctx context.Context, showingID uint64, delta int) error
	BookingForUpdate(ctx context.Context, bookingID uint64) (*model.Booking, error)
	ReservationsByBooking(ctx context.Context, bookingID uint64) ([]model.SeatReservation, error)
	UpdateBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error
	// MarkReservationsBooked flips a booking's reservations to booked
	// and clears their expiry.
	MarkReservationsBooked(ctx context.Context, bookingID uint64) error
	DeleteReservationsByBooking(ctx context.Context, bookingID uint64) error
}

// ReserveRequest describes one reservation attempt.  SeatIDs selects
// specific seats; when empty, TicketCount seats are auto-assigned by
// the ledger (lowest row and number first).  IdempotencyKey, when
// set, makes retries of the same request return the original booking.
type ReserveRequest struct {
	ShowingID      uint64
	UserID         uint64
	SeatIDs        []uint64
	TicketCount    int
	IdempotencyKey string
}

// BookingResult is the committed aggregate returned by ledger
// mutations: the booking plus its seat reservations in the order the
// seats were reserved.
type BookingResult struct {
	Booking model.Booking
	Seats   []model.SeatReservation
}

// Ledger coordinates reservation commits against a Store.  It is
// safe for concurrent use; correctness rests on the store's
// per-showing transaction serialization, not on any ledger-level
// locking.
type Ledger struct {
	store   Store
	holdTTL time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// New constructs a Ledger.  holdTTL bounds how long a selected seat
// stays claimed before it is released to other buyers.
func New(store Store, holdTTL time.Duration, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, holdTTL: holdTTL, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve checks and commits a reservation atomically: the booking is
// created confirmed, one booked seat reservation is written per seat
// and the showing counter is incremented, all in one transaction.
// There are no partial writes: any conflict rolls the whole attempt
// back and surfaces ErrSeatUnavailable or ErrCapacityExceeded.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*BookingResult, error) {
	if req.IdempotencyKey != "" {
		if res, err := l.replay(ctx, req.IdempotencyKey, req.UserID); err == nil {
			return res, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	res, err := l.commit(ctx, req, false)
	if errors.Is(err, ErrIdempotencyConflict) {
		// Lost the race against a concurrent request with the same key.
		return l.replay(ctx, req.IdempotencyKey, req.UserID)
	}
	return res, err
}

// Hold claims seats temporarily: the booking is created pending and
// its reservations are selected with an expiry of now + hold TTL.
// Holds occupy seats but not capacity; the counter moves on Confirm.
func (l *Ledger) Hold(ctx context.Context, req ReserveRequest) (*BookingResult, error) {
	return l.commit(ctx, req, true)
}

// commit is the shared check-and-insert for Reserve and Hold.
func (l *Ledger) commit(ctx context.Context, req ReserveRequest, hold bool) (*BookingResult, error) {
	count := req.TicketCount
	if len(req.SeatIDs) == 0 && count <= 0 {
		count = 1
	}
	var res *BookingResult
	err := l.store.InTx(ctx, req.ShowingID, func(tx Tx) error {
		now := l.now()
		showing, room, err := tx.ShowingForUpdate(ctx, req.ShowingID)
		if err != nil {
			return err
		}
		if showing.Status != model.ShowingScheduled {
			return fmt.Errorf("%w: showing %d is %s", ErrSeatUnavailable, showing.ID, showing.Status)
		}
		if reaped, err := tx.ReapExpired(ctx, req.ShowingID, now); err != nil {
			return err
		} else if reaped > 0 {
			l.log.Debug("reaped expired holds", zap.Uint64("showing_id", req.ShowingID), zap.Int("count", reaped))
		}

		seats, err := l.pickSeats(ctx, tx, req, showing, room, count, now)
		if err != nil {
			return err
		}
		if !hold && showing.BookingsCount+uint32(len(seats)) > room.Capacity {
			return fmt.Errorf("%w: showing %d has %d of %d seats sold",
				ErrCapacityExceeded, showing.ID, showing.BookingsCount, room.Capacity)
		}

		number, err := newBookingNumber()
		if err != nil {
			return err
		}
		booking := model.Booking{
			UserID:          req.UserID,
			ShowingID:       req.ShowingID,
			BookingNumber:   number,
			Status:          model.BookingConfirmed,
			TotalPriceCents: uint32(len(seats)) * showing.PriceCents,
			TicketCount:     uint32(len(seats)),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if hold {
			booking.Status = model.BookingPending
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			booking.IdempotencyKey = &key
		}
		if err := tx.InsertBooking(ctx, &booking); err != nil {
			return err
		}

		status := model.SeatBooked
		var expires *time.Time
		if hold {
			status = model.SeatSelected
			exp := now.Add(l.holdTTL)
			expires = &exp
		}
		reservations := make([]model.SeatReservation, 0, len(seats))
		for _, seat := range seats {
			reservations = append(reservations, model.SeatReservation{
				BookingID:  booking.ID,
				ShowingID:  req.ShowingID,
				SeatID:     seat.ID,
				Row:        seat.Row,
				Number:     seat.Number,
				PriceCents: showing.PriceCents,
				Status:     status,
				ExpiresAt:  expires,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if err := tx.InsertSeatReservations(ctx, reservations); err != nil {
			return err
		}
		if !hold {
			if err := tx.AddBookingsCount(ctx, req.ShowingID, len(seats)); err != nil {
				return err
			}
		}
		res = &BookingResult{Booking: booking, Seats: reservations}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// pickSeats resolves the request to concrete seats inside the
// transaction: either the explicitly requested ones, verified to
// exist and be free, or an automatic assignment of count free seats.
func (l *Ledger) pickSeats(ctx context.Context, tx Tx, req ReserveRequest, showing *model.Showing, room *model.Room, count int, now time.Time) ([]model.Seat, error) {
	if len(req.SeatIDs) > 0 {
		ids := dedupe(req.SeatIDs)
		seats, err := tx.SeatsByIDs(ctx, room.ID, ids)
		if err != nil {
			return nil, err
		}
		if len(seats) != len(ids) {
			return nil, fmt.Errorf("%w: unknown seat in request for showing %d", ErrNotFound, showing.ID)
		}
		taken, err := tx.ActiveSeatIDs(ctx, req.ShowingID, now)
		if err != nil {
			return nil, err
		}
		for _, seat := range seats {
			if _, held := taken[seat.ID]; held {
				return nil, fmt.Errorf("%w: seat %s%d is taken", ErrSeatUnavailable, seat.Row, seat.Number)
			}
		}
		return seats, nil
	}
	seats, err := tx.FreeSeats(ctx, req.ShowingID, room.ID, count, now)
	if err != nil {
		return nil, err
	}
	if len(seats) < count {
		return nil, fmt.Errorf("%w: only %d free seats left for showing %d",
			ErrCapacityExceeded, len(seats), showing.ID)
	}
	return seats, nil
}

// Confirm finalises a held booking: pending becomes confirmed, the
// selected seats become booked and the capacity counter moves, all
// atomically.  An expired hold has already lost its seats; the
// booking is cancelled and ErrSeatUnavailable is returned.
func (l *Ledger) Confirm(ctx context.Context, bookingID, userID uint64) (*BookingResult, error) {
	head, err := l.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if head.UserID != userID {
		return nil, ErrForbidden
	}
	var res *BookingResult
	var expired bool
	err = l.store.InTx(ctx, head.ShowingID, func(tx Tx) error {
		now := l.now()
		showing, room, err := tx.ShowingForUpdate(ctx, head.ShowingID)
		if err != nil {
			return err
		}
		if _, err := tx.ReapExpired(ctx, head.ShowingID, now); err != nil {
			return err
		}
		booking, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingPending {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, booking.ID, booking.Status)
		}
		seats, err := tx.ReservationsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if len(seats) == 0 {
			// The hold expired and its seats were reaped.  The
			// cancellation must commit, so the transaction ends
			// cleanly and the error is raised afterwards.
			if err := tx.UpdateBookingStatus(ctx, bookingID, model.BookingCancelled); err != nil {
				return err
			}
			expired = true
			return nil
		}
		if showing.BookingsCount+booking.TicketCount > room.Capacity {
			return fmt.Errorf("%w: showing %d has %d of %d seats sold",
				ErrCapacityExceeded, showing.ID, showing.BookingsCount, room.Capacity)
		}
		if err := tx.UpdateBookingStatus(ctx, bookingID, model.BookingConfirmed); err != nil {
			return err
		}
		if err := tx.MarkReservationsBooked(ctx, bookingID); err != nil {
			return err
		}
		if err := tx.AddBookingsCount(ctx, head.ShowingID, len(seats)); err != nil {
			return err
		}
		booking.Status = model.BookingConfirmed
		for i := range seats {
			seats[i].Status = model.SeatBooked
			seats[i].ExpiresAt = nil
		}
		res = &BookingResult{Booking: *booking, Seats: seats}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%w: hold for booking %d expired", ErrSeatUnavailable, bookingID)
	}
	return res, nil
}

// Cancel releases a booking: its seat reservations are removed, the
// counter is decremented when the booking was confirmed, and the
// booking moves to cancelled.  The returned seats carry the
// available status for fan-out to watchers.  Cancelling a booking in
// a terminal state fails with ErrInvalidTransition.
func (l *Ledger) Cancel(ctx context.Context, bookingID, userID uint64) (*BookingResult, error) {
	head, err := l.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if head.UserID != userID {
		return nil, ErrForbidden
	}
	var res *BookingResult
	err = l.store.InTx(ctx, head.ShowingID, func(tx Tx) error {
		booking, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !booking.Status.CanTransitionTo(model.BookingCancelled) {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, booking.ID, booking.Status)
		}
		seats, err := tx.ReservationsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := tx.DeleteReservationsByBooking(ctx, bookingID); err != nil {
			return err
		}
		if booking.Status == model.BookingConfirmed {
			if err := tx.AddBookingsCount(ctx, head.ShowingID, -int(booking.TicketCount)); err != nil {
				return err
			}
		}
		if err := tx.UpdateBookingStatus(ctx, bookingID, model.BookingCancelled); err != nil {
			return err
		}
		booking.Status = model.BookingCancelled
		for i := range seats {
			seats[i].Status = model.SeatAvailable
			seats[i].ExpiresAt = nil
		}
		res = &BookingResult{Booking: *booking, Seats: seats}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// replay loads the aggregate committed under an idempotency key.
// Keys are client-supplied, so the stored booking must belong to the
// requesting user before it is handed back.
func (l *Ledger) replay(ctx context.Context, key string, userID uint64) (*BookingResult, error) {
	booking, seats, err := l.store.BookingByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, fmt.Errorf("%w: key belongs to another user", ErrIdempotencyConflict)
	}
	return &BookingResult{Booking: *booking, Seats: seats}, nil
}

// dedupe drops zero and repeated IDs while keeping a stable order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newBookingNumber returns a random hexadecimal booking reference.
func newBookingNumber() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "BK-" + hex.EncodeToString(b), nil
}
