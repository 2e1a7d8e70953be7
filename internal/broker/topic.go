// Package broker connects the reservation core to the message
// broker: one lifecycle-managed AMQP connection, an ordered table of
// (pattern, handler) routes for inbound topics and best-effort
// outbound publishing of seat-state deltas.
package broker

import (
	"fmt"
	"strings"
)

// Logical topics of the notification protocol.  Topics are
// slash-separated with MQTT-style wildcards ('+' one level, '#'
// rest); on the wire they are translated to AMQP topic-exchange
// routing keys (dots, '*' and '#').
const (
	// TopicBookingRequest carries inbound booking requests from clients.
	TopicBookingRequest = "booking/request"
	// TopicSeatUpdates is the outbound broadcast of per-seat deltas.
	TopicSeatUpdates = "seats/updates"
	// TopicSeatStatusInbound matches externally sourced seat
	// corrections: seats/status/{showingId}.
	TopicSeatStatusInbound = "seats/status/#"
)

// TopicBookingResponse returns the user-scoped response topic.
func TopicBookingResponse(userID uint64) string {
	return fmt.Sprintf("booking/response/%d", userID)
}

// TopicShowingSeats returns the showing-scoped mirror of the seat
// update broadcast.
func TopicShowingSeats(showingID uint64) string {
	return fmt.Sprintf("showing/%d/seats", showingID)
}

// BookingRequest is the payload of booking/request.
type BookingRequest struct {
	UserID    uint64   `json:"userId"`
	ShowingID uint64   `json:"showingId"`
	Seats     []uint64 `json:"seats"`
}

// BookingResponse is the payload of booking/response/{userId}.
type BookingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	BookingID uint64 `json:"bookingId,omitempty"`
}

// SeatUpdate is one last-write-wins delta keyed by (showingId,
// seatId); clients reconcile concurrent deltas via UpdatedAt.
type SeatUpdate struct {
	ShowingID uint64 `json:"showingId"`
	SeatID    uint64 `json:"seatId"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
	UserID    uint64 `json:"userId,omitempty"`
}

// TopicMatches reports whether a concrete topic matches a pattern.
// '+' matches exactly one level, '#' matches the remainder including
// the empty one, so "seats/status/#" also matches "seats/status".
func TopicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, p := range pp {
		if p == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if p != "+" && p != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

// routingKey converts a logical topic to an AMQP routing key.
func routingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// bindingKey converts a topic pattern to an AMQP binding key.
func bindingKey(pattern string) string {
	key := strings.ReplaceAll(pattern, "/", ".")
	return strings.ReplaceAll(key, "+", "*")
}

// logicalTopic converts a delivery's routing key back to the
// slash-separated form handlers and patterns use.
func logicalTopic(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}
