package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/movaght/cinema-booking/internal/ledger"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// JWT numeric claims arrive as float64; tokens issued elsewhere may carry the
// subject as a string.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// ledgerError translates ledger sentinel errors into HTTP responses.
func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, ledger.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "requested seats are unavailable"})
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no tickets available for this showing"})
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "idempotency key already used"})
	case errors.Is(err, ledger.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking state does not allow this operation"})
	case errors.Is(err, ledger.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
