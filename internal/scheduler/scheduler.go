package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/movaght/cinema-booking/internal/model"
)

// maintenanceStore is the slice of the repository the scheduler needs.
type maintenanceStore interface {
	ReapExpiredHolds(ctx context.Context, now time.Time) ([]model.SeatReservation, error)
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
	ReconcileBookingsCounts(ctx context.Context) (int64, error)
}

// seatBroadcaster publishes released seats back to live clients.
type seatBroadcaster interface {
	SeatUpdates(ctx context.Context, userID uint64, seats []model.SeatReservation)
}

// Scheduler drives the time-based transitions: expired holds are
// released, elapsed showings and their bookings are completed, and
// the denormalized capacity counters are reconciled against the
// reservation rows.
type Scheduler struct {
	store     maintenanceStore
	notifier  seatBroadcaster
	interval  time.Duration
	reconcile time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func New(store maintenanceStore, notifier seatBroadcaster, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		notifier:  notifier,
		interval:  interval,
		reconcile: 10 * interval,
		log:       log,
		now:       time.Now,
	}
}

// Start blocks until ctx is cancelled, ticking at the configured
// interval.  Reconciliation is heavier and runs on every tenth tick.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))

	lastReconcile := s.now()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
			if s.now().Sub(lastReconcile) >= s.reconcile {
				s.reconcileCounts(ctx)
				lastReconcile = s.now()
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	released, err := s.store.ReapExpiredHolds(ctx, now)
	if err != nil {
		s.log.Error("failed to reap expired holds", zap.Error(err))
	} else if len(released) > 0 {
		s.log.Info("released expired holds", zap.Int("seats", len(released)))
		if s.notifier != nil {
			s.notifier.SeatUpdates(ctx, 0, released)
		}
	}

	completed, err := s.store.CompleteElapsed(ctx, now)
	if err != nil {
		s.log.Error("failed to complete elapsed showings", zap.Error(err))
	} else if completed > 0 {
		s.log.Info("completed elapsed bookings", zap.Int64("bookings", completed))
	}
}

func (s *Scheduler) reconcileCounts(ctx context.Context) {
	fixed, err := s.store.ReconcileBookingsCounts(ctx)
	if err != nil {
		s.log.Error("failed to reconcile bookings counts", zap.Error(err))
		return
	}
	if fixed > 0 {
		s.log.Warn("corrected drifted bookings counts", zap.Int64("showings", fixed))
	}
}
