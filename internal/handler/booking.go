package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/repository"
	"github.com/movaght/cinema-booking/internal/service"
)

// BookingHandler exposes the reservation ledger over HTTP.
type BookingHandler struct {
	Ledger   *ledger.Ledger
	Bookings *repository.BookingRepo
	Notifier *service.Notifier
}

func NewBookingHandler(l *ledger.Ledger, b *repository.BookingRepo, n *service.Notifier) *BookingHandler {
	return &BookingHandler{Ledger: l, Bookings: b, Notifier: n}
}

// ----- DTOs -----

type reserveReq struct {
	ShowingID      uint64   `json:"showing_id"`
	SeatIDs        []uint64 `json:"seat_ids"`
	TicketCount    int      `json:"ticket_count"`
	IdempotencyKey string   `json:"idempotency_key"`
}

type seatPart struct {
	SeatID    uint64 `json:"seat_id"`
	Row       string `json:"row"`
	Number    uint32 `json:"number"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type bookingResp struct {
	ID              uint64     `json:"id"`
	BookingNumber   string     `json:"booking_number"`
	ShowingID       uint64     `json:"showing_id"`
	Status          string     `json:"status"`
	TotalPriceCents uint32     `json:"total_price_cents"`
	TicketCount     uint32     `json:"ticket_count"`
	Seats           []seatPart `json:"seats"`
}

func toBookingResp(res *ledger.BookingResult) bookingResp {
	out := bookingResp{
		ID:              res.Booking.ID,
		BookingNumber:   res.Booking.BookingNumber,
		ShowingID:       res.Booking.ShowingID,
		Status:          string(res.Booking.Status),
		TotalPriceCents: res.Booking.TotalPriceCents,
		TicketCount:     res.Booking.TicketCount,
		Seats:           make([]seatPart, 0, len(res.Seats)),
	}
	for _, s := range res.Seats {
		p := seatPart{SeatID: s.SeatID, Row: s.Row, Number: s.Number, Status: string(s.Status)}
		if s.ExpiresAt != nil {
			p.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
		}
		out.Seats = append(out.Seats, p)
	}
	return out
}

func (h *BookingHandler) bindReserve(c echo.Context) (ledger.ReserveRequest, bool) {
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return ledger.ReserveRequest{}, false
	}
	if req.ShowingID == 0 {
		return ledger.ReserveRequest{}, false
	}
	if len(req.SeatIDs) == 0 && req.TicketCount <= 0 {
		return ledger.ReserveRequest{}, false
	}
	uid, err := getUserID(c)
	if err != nil {
		return ledger.ReserveRequest{}, false
	}
	return ledger.ReserveRequest{
		ShowingID:      req.ShowingID,
		UserID:         uid,
		SeatIDs:        req.SeatIDs,
		TicketCount:    req.TicketCount,
		IdempotencyKey: req.IdempotencyKey,
	}, true
}

// Reserve books seats in one atomic step: the booking comes back
// confirmed with its seats already counted against capacity.
func (h *BookingHandler) Reserve(c echo.Context) error {
	req, ok := h.bindReserve(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showing_id and seat_ids or ticket_count required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Reserve(ctx, req)
	if err != nil {
		return ledgerError(c, err)
	}
	h.Notifier.BookingCommitted(ctx, res)
	return c.JSON(http.StatusCreated, toBookingResp(res))
}

// Hold claims seats temporarily.  The booking comes back pending with
// per-seat expiry timestamps; confirm it before they pass or the
// seats return to the pool.
func (h *BookingHandler) Hold(c echo.Context) error {
	req, ok := h.bindReserve(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showing_id and seat_ids or ticket_count required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Hold(ctx, req)
	if err != nil {
		return ledgerError(c, err)
	}
	h.Notifier.BookingCommitted(ctx, res)
	return c.JSON(http.StatusCreated, toBookingResp(res))
}

// Confirm finalizes a pending hold into a confirmed booking.
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Confirm(ctx, id, uid)
	if err != nil {
		return ledgerError(c, err)
	}
	h.Notifier.BookingCommitted(ctx, res)
	return c.JSON(http.StatusOK, toBookingResp(res))
}

// Cancel releases a pending or confirmed booking; its seats go back
// to the pool immediately.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Cancel(ctx, id, uid)
	if err != nil {
		return ledgerError(c, err)
	}
	// Released seats broadcast without a claimant.
	h.Notifier.SeatUpdates(ctx, 0, res.Seats)
	return c.JSON(http.StatusOK, toBookingResp(res))
}

// Get returns one of the caller's bookings with its seats.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Bookings.GetByID(ctx, id, uid)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// ListMine returns the caller's bookings, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	bookings, err := h.Bookings.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}
