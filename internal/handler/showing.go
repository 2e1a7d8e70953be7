package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/movaght/cinema-booking/internal/ledger"
	"github.com/movaght/cinema-booking/internal/repository"
)

// ShowingHandler serves the public browse endpoints: upcoming
// showings and the live per-showing seat map.
type ShowingHandler struct {
	Showings *repository.ShowingRepo
	Ledger   *ledger.Ledger
}

func NewShowingHandler(s *repository.ShowingRepo, l *ledger.Ledger) *ShowingHandler {
	return &ShowingHandler{Showings: s, Ledger: l}
}

// List returns scheduled showings with remaining ticket counts.
func (h *ShowingHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	listings, err := h.Showings.ListUpcoming(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"showings": listings})
}

// Get returns one showing by id.
func (h *ShowingHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Showings.GetByID(ctx, id)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":             s.ID,
		"room_id":        s.RoomID,
		"movie_ref":      s.MovieRef,
		"movie_title":    s.MovieTitle,
		"starts_at":      s.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":        s.EndsAt.UTC().Format(time.RFC3339),
		"price_cents":    s.PriceCents,
		"status":         s.Status,
		"bookings_count": s.BookingsCount,
	})
}

// SeatMap returns the full seat grid for a showing with the live
// status of every seat.  The response is computed fresh on each
// request; expired holds already read as available.
func (h *ShowingHandler) SeatMap(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	seats, err := h.Ledger.SeatMap(ctx, id)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showing_id": id, "seats": seats})
}
