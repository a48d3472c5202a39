package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movieflex/internal/handler"    // catalog and booking handlers
	"github.com/iliyamo/movieflex/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/movieflex/internal/model"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, m *handler.MovieHandler, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)

	// ---- Movies ----
	g.POST("/movies", m.Create)
	g.PUT("/movies/:id", m.Update)
	g.PATCH("/movies/:id", m.Patch)
	g.DELETE("/movies/:id", m.Delete)

	// ---- Bookings ----
	g.GET("/bookings/pending", b.Pending)
	g.POST("/bookings/:id/approve", b.Approve)
	g.POST("/bookings/:id/reject", b.Reject)
}
