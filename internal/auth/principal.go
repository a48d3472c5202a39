// Package auth describes who is calling a core operation.  Handlers
// build a Principal from the verified access token; background workers
// use System.  Core operations receive the Principal explicitly instead
// of reading ambient request state.
package auth

import "github.com/iliyamo/movieflex/internal/domain"

// Principal is the authenticated caller.
type Principal struct {
	UserID   uint64
	Username string
	Admin    bool
	// System marks internal callers such as the expiry sweeper and the
	// payment webhook.  It passes every admin check.
	System bool
}

// System returns the principal used by background jobs.
func System() Principal { return Principal{Username: "system", System: true} }

// Authenticated reports whether the principal identifies a caller.
func (p Principal) Authenticated() bool { return p.System || p.UserID != 0 }

// IsAdmin reports whether the principal may perform administrator actions.
func (p Principal) IsAdmin() bool { return p.Admin || p.System }

// RequireUser fails with domain.ErrUnauthorized for anonymous callers.
func (p Principal) RequireUser() error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	return nil
}

// RequireAdmin fails with domain.ErrUnauthorized unless the caller is
// staff or the system.
func (p Principal) RequireAdmin() error {
	if !p.IsAdmin() {
		return domain.ErrUnauthorized
	}
	return nil
}

// CanSee reports whether the principal may read a record owned by userID.
func (p Principal) CanSee(ownerID uint64) bool {
	return p.IsAdmin() || (p.UserID != 0 && p.UserID == ownerID)
}
