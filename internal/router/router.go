package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"                             // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp" // exposes the default registry

	"github.com/iliyamo/movieflex/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/movieflex/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication and
// sit outside the rate limiter: liveness, readiness and Prometheus
// metrics.
func RegisterRoutes(e *echo.Echo, ready map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ready))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers all authentication‑related routes.
// Unauthenticated operations live under /v1/auth, while /v1/me needs a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout takes a refresh_token body or a bearer token, so no JWT
	// middleware here.
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), limit)
	e.POST("/v1/logout", a.Logout, limit)
}

// RegisterPublic registers the unauthenticated catalog.  Responses are
// cached in Redis when a cache middleware is supplied.
func RegisterPublic(e *echo.Echo, m *handler.MovieHandler, limit, cache echo.MiddlewareFunc) {
	e.GET("/v1/movies", m.List, limit, cache)
	e.GET("/v1/movies/:id", m.Get, limit, cache)
}

// RegisterWebhooks mounts the payment provider callback.  It is neither
// authenticated nor rate limited; the handler checks the signature.
func RegisterWebhooks(e *echo.Echo, b *handler.BookingHandler) {
	e.POST("/v1/payments/webhook", b.Webhook)
}
