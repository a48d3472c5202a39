// Package domain holds the error taxonomy shared by the stores, the
// booking lifecycle and the HTTP layer.  Handlers translate these
// values into status codes; everything below the handlers wraps them
// with fmt.Errorf("...: %w", err).
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrSeatConflict      = errors.New("seats already booked")
	ErrInvalidShowtime   = errors.New("showtime not offered for this movie")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// Specific not-found values.
var (
	ErrMovieNotFound   = fmt.Errorf("movie %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
)

// Validation returns an ErrValidation carrying a human readable reason.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// SeatConflictError lists the requested seats that were already held
// for the showtime.  It matches ErrSeatConflict with errors.Is.
type SeatConflictError struct {
	Showtime string
	Seats    []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats already booked for %s: %s", e.Showtime, strings.Join(e.Seats, ", "))
}

// Is lets errors.Is(err, ErrSeatConflict) match.
func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// ConflictingSeats extracts the overlapping seat codes from err, if any.
func ConflictingSeats(err error) ([]string, bool) {
	var sc *SeatConflictError
	if errors.As(err, &sc) {
		return sc.Seats, true
	}
	return nil, false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation checks if the error comes from malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidShowtime)
}

// IsConflict checks if the error is caused by the current state of a
// resource rather than by the request itself.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSeatConflict) || errors.Is(err, ErrInvalidTransition)
}
