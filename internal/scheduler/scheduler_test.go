package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/movaght/cinema-booking/internal/model"
)

type fakeStore struct {
	mu        sync.Mutex
	reaps     int
	completes int
	released  []model.SeatReservation
	reapErr   error
}

func (f *fakeStore) ReapExpiredHolds(_ context.Context, _ time.Time) ([]model.SeatReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reaps++
	return f.released, f.reapErr
}

func (f *fakeStore) CompleteElapsed(_ context.Context, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	return 0, nil
}

func (f *fakeStore) ReconcileBookingsCounts(_ context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reaps, f.completes
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	seats []model.SeatReservation
}

func (f *fakeBroadcaster) SeatUpdates(_ context.Context, _ uint64, seats []model.SeatReservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats = append(f.seats, seats...)
}

func TestSchedulerTicksAndStops(t *testing.T) {
	store := &fakeStore{}
	s := New(store, &fakeBroadcaster{}, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		reaps, completes := store.counts()
		if reaps >= 2 && completes >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never ticked")
		}
		time.Sleep(2 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSchedulerBroadcastsReleasedSeats(t *testing.T) {
	released := []model.SeatReservation{
		{ShowingID: 1, SeatID: 4, Status: model.SeatAvailable},
	}
	store := &fakeStore{released: released}
	bc := &fakeBroadcaster{}
	s := New(store, bc, time.Minute, nil)

	s.tick(context.Background())

	bc.mu.Lock()
	defer bc.mu.Unlock()
	assert.Equal(t, released, bc.seats)
}

func TestSchedulerSurvivesStoreErrors(t *testing.T) {
	store := &fakeStore{reapErr: errors.New("db down")}
	s := New(store, &fakeBroadcaster{}, time.Minute, nil)

	// A failing reap must not stop the completion pass.
	s.tick(context.Background())
	reaps, completes := store.counts()
	assert.Equal(t, 1, reaps)
	assert.Equal(t, 1, completes)
}
