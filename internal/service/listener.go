package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movaght/cinema-booking/internal/broker"
	"github.com/movaght/cinema-booking/internal/ledger"
)

// Reserver is the slice of the ledger the listener drives.
type Reserver interface {
	Reserve(ctx context.Context, req ledger.ReserveRequest) (*ledger.BookingResult, error)
}

// Listener handles inbound broker topics.  Handlers run on the
// adapter's I/O context and must not block it: booking requests are
// handed off to a goroutine running the same concurrent reservation
// path used by the HTTP layer.
type Listener struct {
	ledger   Reserver
	notifier *Notifier
	log      *zap.Logger

	// reserveTimeout bounds the detached booking attempt.
	reserveTimeout time.Duration
}

// NewListener constructs a Listener.
func NewListener(l Reserver, n *Notifier, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{ledger: l, notifier: n, log: log, reserveTimeout: 30 * time.Second}
}

// Routes is the ordered dispatch table handed to the broker adapter
// at startup; first match wins.
func (l *Listener) Routes() []broker.Route {
	return []broker.Route{
		{Pattern: broker.TopicBookingRequest, Handler: l.HandleBookingRequest},
		{Pattern: broker.TopicSeatStatusInbound, Handler: l.HandleSeatStatus},
	}
}

// HandleBookingRequest processes one booking/request message.  A
// payload that does not decode is rejected; a decoded but invalid
// request is answered with a failure response on the requester's
// topic, matching what a synchronous caller would receive.
func (l *Listener) HandleBookingRequest(ctx context.Context, topic string, payload []byte) error {
	var req broker.BookingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode booking request: %w", err)
	}
	if req.UserID == 0 {
		return errors.New("booking request without userId")
	}
	if req.ShowingID == 0 || len(req.Seats) == 0 {
		l.notifier.BookingResponse(ctx, req.UserID, false, "invalid booking request", 0)
		return nil
	}
	go l.processBooking(req)
	return nil
}

// processBooking runs the reservation off the broker I/O context and
// publishes the outcome.
func (l *Listener) processBooking(req broker.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), l.reserveTimeout)
	defer cancel()
	res, err := l.ledger.Reserve(ctx, ledger.ReserveRequest{
		ShowingID: req.ShowingID,
		UserID:    req.UserID,
		SeatIDs:   req.Seats,
	})
	if err != nil {
		l.log.Info("broker booking failed",
			zap.Uint64("user_id", req.UserID),
			zap.Uint64("showing_id", req.ShowingID),
			zap.Error(err))
		l.notifier.BookingResponse(ctx, req.UserID, false, failureMessage(err), 0)
		return
	}
	l.notifier.BookingResponse(ctx, req.UserID, true, "booking confirmed", res.Booking.ID)
	l.notifier.BookingCommitted(ctx, res)
}

// HandleSeatStatus forwards an externally sourced seat correction
// from seats/status/{showingId} onto the broadcast topic, with the
// showing id injected from the topic itself.
func (l *Listener) HandleSeatStatus(ctx context.Context, topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("seat status topic %q lacks a showing id", topic)
	}
	showingID, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil || showingID == 0 {
		return fmt.Errorf("seat status topic %q: bad showing id", topic)
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("decode seat status: %w", err)
	}
	l.notifier.ForwardSeatStatus(ctx, showingID, body)
	return nil
}

// failureMessage maps ledger errors to client-facing text.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "showing or seat not found"
	case errors.Is(err, ledger.ErrSeatUnavailable):
		return "requested seats are unavailable"
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return "no tickets available for this showing"
	default:
		return "booking failed"
	}
}
