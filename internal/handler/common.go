package handler // handler defines http handlers

import (
	"errors"   // errors unwraps the typed seat conflict
	"net/http" // net/http provides status codes
	"strconv"  // strconv converts path params to numeric types

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/iliyamo/movieflex/internal/domain" // domain holds the error kinds
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func badID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
}

// writeError translates an error kind into a JSON error response.
// Seat conflicts carry the overlapping seats so clients can re-prompt.
func writeError(c echo.Context, err error) error {
	var sc *domain.SeatConflictError
	switch {
	case errors.As(err, &sc):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats already booked", "seats": sc.Seats})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case domain.IsValidation(err):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case domain.IsNotFound(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case domain.IsConflict(err):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
