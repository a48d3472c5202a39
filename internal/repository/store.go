package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

// CatalogStore owns movie records and their booked-seat sets.  Reserve
// and Release are the seat ledger's storage side: each one is a single
// atomic read-modify-write of one movie's showtime.
type CatalogStore interface {
	CreateMovie(ctx context.Context, in model.MovieInput) (*model.Movie, error)
	UpdateMovie(ctx context.Context, id uint64, in model.MovieInput) (*model.Movie, error)
	GetMovie(ctx context.Context, id uint64) (*model.Movie, error)
	ListMovies(ctx context.Context, f model.MovieFilter) ([]model.Movie, error)
	Genres(ctx context.Context) ([]string, error)
	DeleteMovie(ctx context.Context, id uint64) error
	ReserveSeats(ctx context.Context, movieID uint64, showtime string, seats []string) error
	ReleaseSeats(ctx context.Context, movieID uint64, showtime string, seats []string) (int, error)
}

// BookingStore owns booking records.  Identifiers are assigned by the
// store and never derived from a row count.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	GetBookingForUser(ctx context.Context, id, userID uint64) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListPendingApproval(ctx context.Context) ([]model.Booking, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Booking, error)
	// ChangeStatus applies sc when its preconditions hold.  It returns the
	// booking as stored after the call and whether the change was applied.
	ChangeStatus(ctx context.Context, id uint64, sc model.StatusChange) (*model.Booking, bool, error)
	SetPaymentRef(ctx context.Context, id uint64, ref string) error
}

// validateMovieInput enforces the fields every stored movie must have.
func validateMovieInput(in model.MovieInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Validation("title is required")
	}
	if len(in.Showtimes) == 0 {
		return domain.Validation("at least one showtime is required")
	}
	if in.Duration != nil && *in.Duration < 0 {
		return domain.Validation("duration must not be negative")
	}
	return nil
}
