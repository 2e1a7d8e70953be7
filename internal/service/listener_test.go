package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movaght/cinema-booking/internal/broker"
	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/model"
)

type published struct {
	topic   string
	payload any
}

// capturePub records publishes and can simulate a down broker.
type capturePub struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (p *capturePub) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return broker.ErrNotConnected
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

func (p *capturePub) byTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

type fakeReserver struct {
	res *ledger.BookingResult
	err error

	mu  sync.Mutex
	got []ledger.ReserveRequest
}

func (f *fakeReserver) Reserve(_ context.Context, req ledger.ReserveRequest) (*ledger.BookingResult, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	return f.res, f.err
}

func bookedResult(userID, showingID uint64, seatIDs ...uint64) *ledger.BookingResult {
	res := &ledger.BookingResult{
		Booking: model.Booking{
			ID: 11, UserID: userID, ShowingID: showingID,
			Status: model.BookingConfirmed, TicketCount: uint32(len(seatIDs)),
		},
	}
	for i, id := range seatIDs {
		res.Seats = append(res.Seats, model.SeatReservation{
			BookingID: 11, ShowingID: showingID, SeatID: id,
			Row: "A", Number: uint32(i + 1), Status: model.SeatBooked,
		})
	}
	return res
}

func TestHandleBookingRequestSuccess(t *testing.T) {
	pub := &capturePub{}
	reserver := &fakeReserver{res: bookedResult(7, 1, 3)}
	l := NewListener(reserver, NewNotifier(pub, nil), nil)

	body, _ := json.Marshal(broker.BookingRequest{UserID: 7, ShowingID: 1, Seats: []uint64{3}})
	require.NoError(t, l.HandleBookingRequest(context.Background(), broker.TopicBookingRequest, body))

	waitFor(t, func() bool { return len(pub.byTopic("booking/response/7")) == 1 })

	resp := pub.byTopic("booking/response/7")[0].payload.(broker.BookingResponse)
	assert.True(t, resp.Success)
	assert.Equal(t, uint64(11), resp.BookingID)

	// One delta on the broadcast topic and its showing-scoped mirror.
	waitFor(t, func() bool { return len(pub.byTopic(broker.TopicSeatUpdates)) == 1 })
	update := pub.byTopic(broker.TopicSeatUpdates)[0].payload.(broker.SeatUpdate)
	assert.Equal(t, uint64(1), update.ShowingID)
	assert.Equal(t, uint64(3), update.SeatID)
	assert.Equal(t, string(model.SeatBooked), update.Status)
	assert.Equal(t, uint64(7), update.UserID)
	assert.Len(t, pub.byTopic("showing/1/seats"), 1)

	reserver.mu.Lock()
	defer reserver.mu.Unlock()
	require.Len(t, reserver.got, 1)
	assert.Equal(t, []uint64{3}, reserver.got[0].SeatIDs)
}

func TestHandleBookingRequestSeatTaken(t *testing.T) {
	pub := &capturePub{}
	reserver := &fakeReserver{err: fmt.Errorf("%w: seat A1 is taken", ledger.ErrSeatUnavailable)}
	l := NewListener(reserver, NewNotifier(pub, nil), nil)

	body, _ := json.Marshal(broker.BookingRequest{UserID: 7, ShowingID: 1, Seats: []uint64{1}})
	require.NoError(t, l.HandleBookingRequest(context.Background(), broker.TopicBookingRequest, body))

	waitFor(t, func() bool { return len(pub.byTopic("booking/response/7")) == 1 })
	resp := pub.byTopic("booking/response/7")[0].payload.(broker.BookingResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, "requested seats are unavailable", resp.Message)
	assert.Zero(t, resp.BookingID)
	assert.Empty(t, pub.byTopic(broker.TopicSeatUpdates))
}

func TestHandleBookingRequestInvalidFields(t *testing.T) {
	pub := &capturePub{}
	reserver := &fakeReserver{}
	l := NewListener(reserver, NewNotifier(pub, nil), nil)

	// Known user but no seats: answered on the response topic, not rejected.
	body, _ := json.Marshal(broker.BookingRequest{UserID: 7, ShowingID: 1})
	require.NoError(t, l.HandleBookingRequest(context.Background(), broker.TopicBookingRequest, body))

	msgs := pub.byTopic("booking/response/7")
	require.Len(t, msgs, 1)
	resp := msgs[0].payload.(broker.BookingResponse)
	assert.False(t, resp.Success)

	reserver.mu.Lock()
	defer reserver.mu.Unlock()
	assert.Empty(t, reserver.got)
}

func TestHandleBookingRequestRejectsGarbage(t *testing.T) {
	l := NewListener(&fakeReserver{}, NewNotifier(&capturePub{}, nil), nil)

	err := l.HandleBookingRequest(context.Background(), broker.TopicBookingRequest, []byte("not json"))
	assert.Error(t, err)

	// Without a userId there is no response topic to answer on.
	body, _ := json.Marshal(broker.BookingRequest{ShowingID: 1, Seats: []uint64{1}})
	err = l.HandleBookingRequest(context.Background(), broker.TopicBookingRequest, body)
	assert.Error(t, err)
}

func TestHandleSeatStatusForwards(t *testing.T) {
	pub := &capturePub{}
	l := NewListener(&fakeReserver{}, NewNotifier(pub, nil), nil)

	payload := []byte(`{"seatId": 5, "status": "available"}`)
	require.NoError(t, l.HandleSeatStatus(context.Background(), "seats/status/42", payload))

	msgs := pub.byTopic(broker.TopicSeatUpdates)
	require.Len(t, msgs, 1)
	body := msgs[0].payload.(map[string]any)
	assert.Equal(t, uint64(42), body["showingId"])
	assert.Equal(t, float64(5), body["seatId"])
	assert.Equal(t, "available", body["status"])
}

func TestHandleSeatStatusBadTopic(t *testing.T) {
	l := NewListener(&fakeReserver{}, NewNotifier(&capturePub{}, nil), nil)

	assert.Error(t, l.HandleSeatStatus(context.Background(), "seats/status", nil))
	assert.Error(t, l.HandleSeatStatus(context.Background(), "seats/status/abc", []byte(`{}`)))
	assert.Error(t, l.HandleSeatStatus(context.Background(), "seats/status/42", []byte("not json")))
}

func TestRoutesOrder(t *testing.T) {
	l := NewListener(&fakeReserver{}, NewNotifier(&capturePub{}, nil), nil)
	routes := l.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, broker.TopicBookingRequest, routes[0].Pattern)
	assert.Equal(t, broker.TopicSeatStatusInbound, routes[1].Pattern)
}

func TestNotifierSwallowsPublishFailures(t *testing.T) {
	pub := &capturePub{fail: true}
	n := NewNotifier(pub, nil)

	// Dropped broadcasts must not surface; the commit already happened.
	n.BookingResponse(context.Background(), 7, true, "booking confirmed", 11)
	n.SeatUpdates(context.Background(), 7, []model.SeatReservation{
		{ShowingID: 1, SeatID: 2, Status: model.SeatBooked},
	})
}

func TestFailureMessageMapping(t *testing.T) {
	assert.Equal(t, "showing or seat not found", failureMessage(ledger.ErrNotFound))
	assert.Equal(t, "requested seats are unavailable", failureMessage(ledger.ErrSeatUnavailable))
	assert.Equal(t, "no tickets available for this showing", failureMessage(ledger.ErrCapacityExceeded))
	assert.Equal(t, "booking failed", failureMessage(errors.New("boom")))
}
