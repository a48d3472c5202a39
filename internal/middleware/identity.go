package middleware

// identity.go holds the helpers that read the authenticated caller back
// out of the Echo context after JWTAuth has run.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movieflex/internal/auth"
)

const principalKey = "principal"

// PrincipalFrom returns the caller stored by JWTAuth.  The zero
// Principal (anonymous) is returned when the route is not protected.
func PrincipalFrom(c echo.Context) auth.Principal {
	if p, ok := c.Get(principalKey).(auth.Principal); ok {
		return p
	}
	return auth.Principal{}
}

// WithPrincipal stores p as the caller.  Tests use it to skip token
// issuance.
func WithPrincipal(c echo.Context, p auth.Principal) {
	c.Set(principalKey, p)
}
