package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movaght/cinema-booking/internal/model"
)

func newTestLedger(t *testing.T, rows, cols int) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore(rows, cols)
	return New(store, 5*time.Minute, nil), store
}

func TestReserveAutoAssignsLowestSeats(t *testing.T) {
	l, store := newTestLedger(t, 2, 3)

	res, err := l.Reserve(context.Background(), ReserveRequest{ShowingID: 1, UserID: 7, TicketCount: 2})
	require.NoError(t, err)

	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, uint32(2), res.Booking.TicketCount)
	assert.Equal(t, uint32(3000), res.Booking.TotalPriceCents)
	require.Len(t, res.Seats, 2)
	assert.Equal(t, "A", res.Seats[0].Row)
	assert.Equal(t, uint32(1), res.Seats[0].Number)
	assert.Equal(t, "A", res.Seats[1].Row)
	assert.Equal(t, uint32(2), res.Seats[1].Number)
	assert.Equal(t, uint32(2), store.d.showing.BookingsCount)
}

func TestReserveExplicitSeatConflicts(t *testing.T) {
	l, _ := newTestLedger(t, 1, 2) // seats A1=1, A2=2
	ctx := context.Background()

	_, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 1, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 2, SeatIDs: []uint64{1}})
	assert.ErrorIs(t, err, ErrSeatUnavailable)

	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 2, SeatIDs: []uint64{2}})
	assert.NoError(t, err)

	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 3, SeatIDs: []uint64{99}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReserveUnknownShowing(t *testing.T) {
	l, _ := newTestLedger(t, 1, 1)
	_, err := l.Reserve(context.Background(), ReserveRequest{ShowingID: 42, UserID: 1, TicketCount: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReserveCancelledShowing(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	store.d.showing.Status = model.ShowingCancelled

	_, err := l.Reserve(context.Background(), ReserveRequest{ShowingID: 1, UserID: 1, TicketCount: 1})
	assert.ErrorIs(t, err, ErrSeatUnavailable)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	l, store := newTestLedger(t, 2, 5) // capacity 10
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: uint64(i + 1), TicketCount: 1})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, uint32(10), store.d.showing.BookingsCount)
	assert.Len(t, store.d.reservations, 10)
}

func TestConcurrentReserveSameSeat(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: uint64(i + 1), SeatIDs: []uint64{1}})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrSeatUnavailable)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, uint32(1), store.d.showing.BookingsCount)
}

func TestReserveIdempotentReplay(t *testing.T) {
	l, store := newTestLedger(t, 1, 4)
	ctx := context.Background()

	first, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 3, TicketCount: 2, IdempotencyKey: "order-77"})
	require.NoError(t, err)

	second, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 3, TicketCount: 2, IdempotencyKey: "order-77"})
	require.NoError(t, err)

	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, first.Booking.BookingNumber, second.Booking.BookingNumber)
	assert.Len(t, second.Seats, 2)
	// The retry must not book more seats or move the counter again.
	assert.Equal(t, uint32(2), store.d.showing.BookingsCount)
	assert.Len(t, store.d.bookings, 1)
}

func TestReserveIdempotencyKeyOfAnotherUser(t *testing.T) {
	l, store := newTestLedger(t, 1, 4)
	ctx := context.Background()

	first, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 3, TicketCount: 1, IdempotencyKey: "order-77"})
	require.NoError(t, err)

	// The key is client-supplied; another user replaying it must not
	// receive user 3's booking.
	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 9, TicketCount: 1, IdempotencyKey: "order-77"})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	assert.Equal(t, uint32(1), store.d.showing.BookingsCount)
	assert.Len(t, store.d.bookings, 1)
	assert.Equal(t, uint64(3), store.d.bookings[first.Booking.ID].UserID)
}

func TestConcurrentReserveSameIdempotencyKey(t *testing.T) {
	l, store := newTestLedger(t, 2, 5)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]*BookingResult, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Reserve(ctx, ReserveRequest{
				ShowingID: 1, UserID: 5, TicketCount: 1, IdempotencyKey: "retry-storm",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Booking.ID, results[i].Booking.ID)
	}
	assert.Equal(t, uint32(1), store.d.showing.BookingsCount)
	assert.Len(t, store.d.bookings, 1)
}

func TestHoldThenConfirm(t *testing.T) {
	l, store := newTestLedger(t, 1, 4)
	ctx := context.Background()

	held, err := l.Hold(ctx, ReserveRequest{ShowingID: 1, UserID: 9, SeatIDs: []uint64{2, 3}})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, held.Booking.Status)
	require.Len(t, held.Seats, 2)
	for _, seat := range held.Seats {
		assert.Equal(t, model.SeatSelected, seat.Status)
		require.NotNil(t, seat.ExpiresAt)
	}
	// Holds do not consume capacity until confirmed.
	assert.Equal(t, uint32(0), store.d.showing.BookingsCount)

	// The held seats are still unavailable to others.
	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 10, SeatIDs: []uint64{2}})
	assert.ErrorIs(t, err, ErrSeatUnavailable)

	confirmed, err := l.Confirm(ctx, held.Booking.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Booking.Status)
	for _, seat := range confirmed.Seats {
		assert.Equal(t, model.SeatBooked, seat.Status)
		assert.Nil(t, seat.ExpiresAt)
	}
	assert.Equal(t, uint32(2), store.d.showing.BookingsCount)
}

func TestConfirmByOtherUserForbidden(t *testing.T) {
	l, _ := newTestLedger(t, 1, 2)
	ctx := context.Background()

	held, err := l.Hold(ctx, ReserveRequest{ShowingID: 1, UserID: 9, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	_, err = l.Confirm(ctx, held.Booking.ID, 10)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelByOtherUserForbidden(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	ctx := context.Background()

	res, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 9, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	_, err = l.Cancel(ctx, res.Booking.ID, 10)
	assert.ErrorIs(t, err, ErrForbidden)

	// A zero user id is never a wildcard.
	_, err = l.Cancel(ctx, res.Booking.ID, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, model.BookingConfirmed, store.d.bookings[res.Booking.ID].Status)
}

func TestExpiredHoldReleasesSeat(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	held, err := l.Hold(ctx, ReserveRequest{ShowingID: 1, UserID: 1, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	// Before expiry the seat is taken.
	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 2, SeatIDs: []uint64{1}})
	assert.ErrorIs(t, err, ErrSeatUnavailable)

	// Past the TTL the same seat books normally without any reaper run.
	l.now = func() time.Time { return base.Add(6 * time.Minute) }
	res, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 2, SeatIDs: []uint64{1}})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)

	// Confirming the expired hold fails and cancels the booking.
	_, err = l.Confirm(ctx, held.Booking.ID, 1)
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	b, ok := store.d.bookings[held.Booking.ID]
	require.True(t, ok)
	assert.Equal(t, model.BookingCancelled, b.Status)
}

func TestCancelReleasesCapacityAndSeat(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	ctx := context.Background()

	res, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 4, SeatIDs: []uint64{1, 2}})
	require.NoError(t, err)
	require.Equal(t, uint32(2), store.d.showing.BookingsCount)

	cancelled, err := l.Cancel(ctx, res.Booking.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Booking.Status)
	for _, seat := range cancelled.Seats {
		assert.Equal(t, model.SeatAvailable, seat.Status)
	}
	assert.Equal(t, uint32(0), store.d.showing.BookingsCount)

	// The freed seats can be rebooked immediately.
	_, err = l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 5, SeatIDs: []uint64{1, 2}})
	assert.NoError(t, err)
}

func TestCancelPendingHoldKeepsCounter(t *testing.T) {
	l, store := newTestLedger(t, 1, 2)
	ctx := context.Background()

	held, err := l.Hold(ctx, ReserveRequest{ShowingID: 1, UserID: 4, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	// The hold never moved the counter, so cancelling must not either.
	_, err = l.Cancel(ctx, held.Booking.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), store.d.showing.BookingsCount)
}

func TestCancelTwiceRejected(t *testing.T) {
	l, _ := newTestLedger(t, 1, 1)
	ctx := context.Background()

	res, err := l.Reserve(ctx, ReserveRequest{ShowingID: 1, UserID: 4, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	_, err = l.Cancel(ctx, res.Booking.ID, 4)
	require.NoError(t, err)

	_, err = l.Cancel(ctx, res.Booking.ID, 4)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReserveDeduplicatesSeatIDs(t *testing.T) {
	l, store := newTestLedger(t, 1, 3)

	res, err := l.Reserve(context.Background(), ReserveRequest{ShowingID: 1, UserID: 1, SeatIDs: []uint64{2, 2, 0, 2}})
	require.NoError(t, err)
	require.Len(t, res.Seats, 1)
	assert.Equal(t, uint32(1), res.Booking.TicketCount)
	assert.Equal(t, uint32(1), store.d.showing.BookingsCount)
}
