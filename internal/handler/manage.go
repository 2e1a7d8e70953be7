package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/movaght/cinema-booking/internal/model"
	"github.com/movaght/cinema-booking/internal/repository"
)

// ManageHandler holds the manager-only endpoints for setting up
// rooms and scheduling showings.
type ManageHandler struct {
	Rooms    *repository.RoomRepo
	Showings *repository.ShowingRepo
}

func NewManageHandler(rooms *repository.RoomRepo, showings *repository.ShowingRepo) *ManageHandler {
	return &ManageHandler{Rooms: rooms, Showings: showings}
}

type createRoomReq struct {
	Name        string `json:"name"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	PremiumRows int    `json:"premium_rows"`
	Has3D       bool   `json:"has_3d"`
	HasIMAX     bool   `json:"has_imax"`
	HasDolby    bool   `json:"has_dolby"`
}

// CreateRoom creates a room and generates its full seat grid in one
// transaction.
func (h *ManageHandler) CreateRoom(c echo.Context) error {
	var req createRoomReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Rows < 1 || req.Cols < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, rows and cols required"})
	}
	if req.PremiumRows < 0 || req.PremiumRows > req.Rows {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "premium_rows out of range"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	room := &model.Room{
		Name:     req.Name,
		Has3D:    req.Has3D,
		HasIMAX:  req.HasIMAX,
		HasDolby: req.HasDolby,
	}
	if err := h.Rooms.CreateWithLayout(ctx, room, req.Rows, req.Cols, req.PremiumRows); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create room failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":       room.ID,
		"name":     room.Name,
		"capacity": room.Capacity,
	})
}

type createShowingReq struct {
	RoomID     uint64 `json:"room_id"`
	MovieRef   string `json:"movie_ref"`
	MovieTitle string `json:"movie_title"`
	StartsAt   string `json:"starts_at"` // RFC3339
	EndsAt     string `json:"ends_at"`   // RFC3339
	PriceCents uint32 `json:"price_cents"`
}

// CreateShowing schedules a movie in a room.
func (h *ManageHandler) CreateShowing(c echo.Context) error {
	var req createShowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.RoomID == 0 || req.MovieTitle == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "room_id and movie_title required"})
	}
	starts, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC3339"})
	}
	ends, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be RFC3339"})
	}
	if !ends.After(starts) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if _, err := h.Rooms.GetByID(ctx, req.RoomID); err != nil {
		return ledgerError(c, err)
	}
	s := &model.Showing{
		RoomID:     req.RoomID,
		MovieRef:   req.MovieRef,
		MovieTitle: req.MovieTitle,
		StartsAt:   starts.UTC(),
		EndsAt:     ends.UTC(),
		PriceCents: req.PriceCents,
		Status:     model.ShowingScheduled,
	}
	if err := h.Showings.Create(ctx, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create showing failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": s.ID})
}

// CancelShowing marks a scheduled showing cancelled.  Individual
// bookings are cancelled by their owners or by support tooling; this
// endpoint only stops new sales.
func (h *ManageHandler) CancelShowing(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showing id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Showings.CancelShowing(ctx, id); err != nil {
		return ledgerError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
