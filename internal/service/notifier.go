// Package service glues the reservation ledger to the notification
// fan-out protocol: outbound seat-state deltas and booking responses,
// and inbound broker messages feeding back into the ledger.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/movaght/cinema-booking/internal/broker"
	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/model"
)

// Publisher is the outbound half of the broker adapter.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Notifier broadcasts ledger mutations to subscribed clients.  Every
// publish is best-effort: by the time a notifier method runs, the
// state it describes is already durably committed, so a broker
// failure is logged and swallowed — it delays consistency for remote
// watchers but never rolls anything back, and the requester still
// gets their synchronous result.
type Notifier struct {
	pub Publisher
	log *zap.Logger
	now func() time.Time
}

// NewNotifier constructs a Notifier.
func NewNotifier(pub Publisher, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{pub: pub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// SeatUpdates broadcasts one delta per seat, in the order the seats
// were reserved, to seats/updates and to the showing-scoped mirror
// topic.  Cross-subscriber ordering is not guaranteed; each message
// is a last-write-wins delta keyed by (showingId, seatId) with
// UpdatedAt for reconciliation.
func (n *Notifier) SeatUpdates(ctx context.Context, userID uint64, seats []model.SeatReservation) {
	updatedAt := n.now().Format(time.RFC3339)
	for _, seat := range seats {
		update := broker.SeatUpdate{
			ShowingID: seat.ShowingID,
			SeatID:    seat.SeatID,
			Status:    string(seat.Status),
			UpdatedAt: updatedAt,
			UserID:    userID,
		}
		n.publish(ctx, broker.TopicSeatUpdates, update)
		n.publish(ctx, broker.TopicShowingSeats(seat.ShowingID), update)
	}
}

// BookingResponse reports the outcome of a broker-originated booking
// request on the requester's private topic.
func (n *Notifier) BookingResponse(ctx context.Context, userID uint64, success bool, message string, bookingID uint64) {
	n.publish(ctx, broker.TopicBookingResponse(userID), broker.BookingResponse{
		Success:   success,
		Message:   message,
		BookingID: bookingID,
	})
}

// BookingCommitted fans out a successful reservation: the per-seat
// broadcasts for all watchers.
func (n *Notifier) BookingCommitted(ctx context.Context, res *ledger.BookingResult) {
	n.SeatUpdates(ctx, res.Booking.UserID, res.Seats)
}

// ForwardSeatStatus re-publishes an externally sourced correction on
// the broadcast topic with the showing id injected.
func (n *Notifier) ForwardSeatStatus(ctx context.Context, showingID uint64, payload map[string]any) {
	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["showingId"] = showingID
	n.publish(ctx, broker.TopicSeatUpdates, merged)
}

func (n *Notifier) publish(ctx context.Context, topic string, payload any) {
	if err := n.pub.Publish(ctx, topic, payload); err != nil {
		n.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
