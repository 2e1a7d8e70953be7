package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/movaght/cinema-booking/internal/model"
)

// memStore is an in-memory Store with the same atomicity guarantees
// as the SQL implementation: one transaction at a time, full rollback
// on error, and reservation uniqueness per (showing, seat) enforced
// at insert.
type memStore struct {
	mu sync.Mutex
	d  memData
}

type memData struct {
	showing      model.Showing
	room         model.Room
	seats        []model.Seat
	bookings     map[uint64]model.Booking
	reservations map[uint64]model.SeatReservation
	byKey        map[string]uint64
	nextBooking  uint64
	nextRes      uint64
}

// newMemStore builds a store with one scheduled showing in a rows by
// cols room.  Seat IDs run 1..rows*cols in (row, number) order.
func newMemStore(rows, cols int) *memStore {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &memStore{d: memData{
		room: model.Room{ID: 1, Name: "Screen 1", Capacity: uint32(rows * cols)},
		showing: model.Showing{
			ID: 1, RoomID: 1, MovieTitle: "Solaris",
			StartsAt: now.Add(6 * time.Hour), EndsAt: now.Add(8 * time.Hour),
			PriceCents: 1500, Status: model.ShowingScheduled,
		},
		bookings:     make(map[uint64]model.Booking),
		reservations: make(map[uint64]model.SeatReservation),
		byKey:        make(map[string]uint64),
	}}
	id := uint64(0)
	for r := 0; r < rows; r++ {
		for c := 1; c <= cols; c++ {
			id++
			s.d.seats = append(s.d.seats, model.Seat{
				ID: id, RoomID: 1, Row: string(rune('A' + r)), Number: uint32(c),
				SeatType: model.SeatTypeStandard, IsActive: true,
			})
		}
	}
	return s
}

func cloneData(d memData) memData {
	out := d
	out.seats = append([]model.Seat(nil), d.seats...)
	out.bookings = make(map[uint64]model.Booking, len(d.bookings))
	for k, v := range d.bookings {
		out.bookings[k] = v
	}
	out.reservations = make(map[uint64]model.SeatReservation, len(d.reservations))
	for k, v := range d.reservations {
		out.reservations[k] = v
	}
	out.byKey = make(map[string]uint64, len(d.byKey))
	for k, v := range d.byKey {
		out.byKey[k] = v
	}
	return out
}

func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Number < seats[j].Number
	})
}

func sortReservations(rs []model.SeatReservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Row != rs[j].Row {
			return rs[i].Row < rs[j].Row
		}
		return rs[i].Number < rs[j].Number
	})
}

// ----- Store -----

func (s *memStore) ShowingByID(_ context.Context, showingID uint64) (*model.Showing, *model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if showingID != s.d.showing.ID {
		return nil, nil, fmt.Errorf("%w: showing", ErrNotFound)
	}
	sh, rm := s.d.showing, s.d.room
	return &sh, &rm, nil
}

func (s *memStore) BookingByID(_ context.Context, bookingID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.d.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: booking", ErrNotFound)
	}
	return &b, nil
}

func (s *memStore) BookingByIdempotencyKey(_ context.Context, key string) (*model.Booking, []model.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.d.byKey[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: idempotency key", ErrNotFound)
	}
	b := s.d.bookings[id]
	var seats []model.SeatReservation
	for _, r := range s.d.reservations {
		if r.BookingID == id {
			seats = append(seats, r)
		}
	}
	sortReservations(seats)
	return &b, seats, nil
}

func (s *memStore) SeatsByRoom(_ context.Context, roomID uint64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for _, seat := range s.d.seats {
		if seat.RoomID == roomID && seat.IsActive {
			out = append(out, seat)
		}
	}
	sortSeats(out)
	return out, nil
}

func (s *memStore) ActiveReservationsByShowing(_ context.Context, showingID uint64, now time.Time) ([]model.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatReservation
	for _, r := range s.d.reservations {
		if r.ShowingID == showingID && r.Active(now) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *memStore) InTx(_ context.Context, _ uint64, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := cloneData(s.d)
	if err := fn(&memTx{s: s}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// ----- Tx -----

type memTx struct{ s *memStore }

func (t *memTx) ShowingForUpdate(_ context.Context, showingID uint64) (*model.Showing, *model.Room, error) {
	if showingID != t.s.d.showing.ID {
		return nil, nil, fmt.Errorf("%w: showing", ErrNotFound)
	}
	sh, rm := t.s.d.showing, t.s.d.room
	return &sh, &rm, nil
}

func (t *memTx) ReapExpired(_ context.Context, showingID uint64, now time.Time) (int, error) {
	n := 0
	for id, r := range t.s.d.reservations {
		if r.ShowingID == showingID && r.Status == model.SeatSelected &&
			r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			delete(t.s.d.reservations, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveSeatIDs(_ context.Context, showingID uint64, now time.Time) (map[uint64]model.SeatStatus, error) {
	out := make(map[uint64]model.SeatStatus)
	for _, r := range t.s.d.reservations {
		if r.ShowingID == showingID && r.Active(now) {
			out[r.SeatID] = r.Status
		}
	}
	return out, nil
}

func (t *memTx) SeatsByIDs(_ context.Context, roomID uint64, seatIDs []uint64) ([]model.Seat, error) {
	want := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var out []model.Seat
	for _, seat := range t.s.d.seats {
		if want[seat.ID] && seat.RoomID == roomID && seat.IsActive {
			out = append(out, seat)
		}
	}
	sortSeats(out)
	return out, nil
}

func (t *memTx) FreeSeats(_ context.Context, showingID, roomID uint64, limit int, now time.Time) ([]model.Seat, error) {
	taken, _ := t.ActiveSeatIDs(context.Background(), showingID, now)
	var out []model.Seat
	for _, seat := range t.s.d.seats {
		if seat.RoomID == roomID && seat.IsActive {
			if _, held := taken[seat.ID]; !held {
				out = append(out, seat)
			}
		}
	}
	sortSeats(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if b.IdempotencyKey != nil {
		if _, exists := t.s.d.byKey[*b.IdempotencyKey]; exists {
			return ErrIdempotencyConflict
		}
	}
	t.s.d.nextBooking++
	b.ID = t.s.d.nextBooking
	t.s.d.bookings[b.ID] = *b
	if b.IdempotencyKey != nil {
		t.s.d.byKey[*b.IdempotencyKey] = b.ID
	}
	return nil
}

func (t *memTx) InsertSeatReservations(_ context.Context, reservations []model.SeatReservation) error {
	for _, nr := range reservations {
		for _, r := range t.s.d.reservations {
			if r.ShowingID == nr.ShowingID && r.SeatID == nr.SeatID {
				return fmt.Errorf("%w: seat %s%d is taken", ErrSeatUnavailable, nr.Row, nr.Number)
			}
		}
		t.s.d.nextRes++
		nr.ID = t.s.d.nextRes
		t.s.d.reservations[nr.ID] = nr
	}
	return nil
}

func (t *memTx) AddBookingsCount(_ context.Context, showingID uint64, delta int) error {
	if showingID != t.s.d.showing.ID {
		return fmt.Errorf("%w: showing", ErrNotFound)
	}
	t.s.d.showing.BookingsCount = uint32(int(t.s.d.showing.BookingsCount) + delta)
	return nil
}

func (t *memTx) BookingForUpdate(_ context.Context, bookingID uint64) (*model.Booking, error) {
	b, ok := t.s.d.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: booking", ErrNotFound)
	}
	return &b, nil
}

func (t *memTx) ReservationsByBooking(_ context.Context, bookingID uint64) ([]model.SeatReservation, error) {
	var out []model.SeatReservation
	for _, r := range t.s.d.reservations {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, bookingID uint64, status model.BookingStatus) error {
	b, ok := t.s.d.bookings[bookingID]
	if !ok {
		return fmt.Errorf("%w: booking", ErrNotFound)
	}
	b.Status = status
	t.s.d.bookings[bookingID] = b
	return nil
}

func (t *memTx) MarkReservationsBooked(_ context.Context, bookingID uint64) error {
	for id, r := range t.s.d.reservations {
		if r.BookingID == bookingID {
			r.Status = model.SeatBooked
			r.ExpiresAt = nil
			t.s.d.reservations[id] = r
		}
	}
	return nil
}

func (t *memTx) DeleteReservationsByBooking(_ context.Context, bookingID uint64) error {
	for id, r := range t.s.d.reservations {
		if r.BookingID == bookingID {
			delete(t.s.d.reservations, id)
		}
	}
	return nil
}
