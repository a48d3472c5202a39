package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller in the request context.  Handlers read it back
// with PrincipalFrom; the raw "role" key is kept for RequireRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			p, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			role := model.RoleUser
			if p.Admin {
				role = model.RoleAdmin
			}
			c.Set(principalKey, p)
			c.Set("role", role)
			return next(c)
		}
	}
}
