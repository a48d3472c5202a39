package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movieflex/internal/handler"
	"github.com/iliyamo/movieflex/internal/middleware"
	"github.com/iliyamo/movieflex/internal/model"
)

// RegisterUser registers booking endpoints for signed-in users.
// Administrators may use them too; ownership is checked by the service.
func RegisterUser(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		limit, // after JWTAuth so buckets are per user
	)
	g.POST("/movies/:id/bookings", h.Create)
	g.GET("/bookings", h.List)
	g.GET("/bookings/:id", h.Get)

	// Checkout and the provider's redirect targets.
	g.POST("/bookings/:id/checkout", h.StartCheckout)
	g.GET("/bookings/:id/payment/success", h.PaymentSuccess)
	g.GET("/bookings/:id/payment/cancel", h.PaymentCancel)

	g.GET("/bookings/:id/ticket", h.Ticket)
}
