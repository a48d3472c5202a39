package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

func seedMovie(t *testing.T, s *MemoryCatalog, showtimes ...string) *model.Movie {
	t.Helper()
	m, err := s.CreateMovie(context.Background(), model.MovieInput{
		Title: "Inception", Genre: "Sci-Fi", Showtimes: showtimes,
	})
	require.NoError(t, err)
	return m
}

func TestMemoryCatalogCreateValidates(t *testing.T) {
	s := NewMemoryCatalog()
	_, err := s.CreateMovie(context.Background(), model.MovieInput{Title: " ", Showtimes: []string{"18:00"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.CreateMovie(context.Background(), model.MovieInput{Title: "Up"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryCatalogListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	for _, in := range []model.MovieInput{
		{Title: "Inception", Genre: "Sci-Fi", Showtimes: []string{"18:00"}},
		{Title: "Interstellar", Genre: "Sci-Fi", Showtimes: []string{"20:00"}},
		{Title: "Up", Genre: "Animation", Showtimes: []string{"10:00"}},
	} {
		_, err := s.CreateMovie(ctx, in)
		require.NoError(t, err)
	}

	got, err := s.ListMovies(ctx, model.MovieFilter{Title: "inter"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Interstellar", got[0].Title)

	got, err = s.ListMovies(ctx, model.MovieFilter{Genre: "Sci-Fi"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListMovies(ctx, model.MovieFilter{Genre: "all"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	genres, err := s.Genres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Animation", "Sci-Fi"}, genres)
}

func TestMemoryCatalogReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	m := seedMovie(t, s, "18:00")
	require.NoError(t, s.ReserveSeats(ctx, m.ID, "18:00", []string{"A1"}))

	got, err := s.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	got.BookedSeats["18:00"][0] = "Z9"
	got.Showtimes[0] = "99:99"

	again, err := s.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, again.BookedSeats["18:00"])
	assert.Equal(t, []string{"18:00"}, again.Showtimes)
}

func TestMemoryCatalogUpdateDropsShowtimeSeats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	m := seedMovie(t, s, "13:00", "17:00")
	require.NoError(t, s.ReserveSeats(ctx, m.ID, "17:00", []string{"B1"}))

	updated, err := s.UpdateMovie(ctx, m.ID, model.MovieInput{Title: "Inception", Genre: "Sci-Fi", Showtimes: []string{"13:00"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"13:00"}, updated.Showtimes)
	assert.Empty(t, updated.BookedSeats)

	_, err = s.UpdateMovie(ctx, 999, model.MovieInput{Title: "x", Showtimes: []string{"1"}})
	assert.ErrorIs(t, err, domain.ErrMovieNotFound)
}

func TestMemoryCatalogDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	m := seedMovie(t, s, "18:00")
	require.NoError(t, s.DeleteMovie(ctx, m.ID))
	assert.ErrorIs(t, s.DeleteMovie(ctx, m.ID), domain.ErrMovieNotFound)
	_, err := s.GetMovie(ctx, m.ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestMemoryCatalogConcurrentOverlappingReserves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	m := seedMovie(t, s, "18:00")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ReserveSeats(ctx, m.ID, "18:00", []string{"A1", "A2"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case domain.IsConflict(err):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	got, err := s.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "A2"}, got.BookedSeats["18:00"])
}

func TestMemoryCatalogConcurrentDisjointReserves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCatalog()
	m := seedMovie(t, s, "18:00")

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.ReserveSeats(ctx, m.ID, "18:00", []string{fmt.Sprintf("R%d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	got, err := s.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.BookedSeats["18:00"], 25)
}

func TestMemoryBookingsConcurrentCreateDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookings()

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := &model.Booking{UserID: 1, MovieID: 1, Showtime: "18:00", Seats: []string{fmt.Sprintf("S%d", i)}}
			if assert.NoError(t, s.CreateBooking(ctx, b)) {
				ids <- b.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMemoryBookingsChangeStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookings()
	b := &model.Booking{UserID: 7, MovieID: 1, Showtime: "18:00", Seats: []string{"A1"}}
	require.NoError(t, s.CreateBooking(ctx, b))
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)
	assert.Equal(t, model.ApprovalPending, b.ApprovalStatus)

	got, applied, err := s.ChangeStatus(ctx, b.ID, model.Approve)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.ApprovalPending, got.ApprovalStatus)

	got, applied, err = s.ChangeStatus(ctx, b.ID, model.MarkPaid)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)

	pending, err := s.ListPendingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, _, err = s.ChangeStatus(ctx, 404, model.MarkPaid)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestMemoryBookingsOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookings()
	b := &model.Booking{UserID: 7, MovieID: 1, Showtime: "18:00", Seats: []string{"A1"}}
	require.NoError(t, s.CreateBooking(ctx, b))

	_, err := s.GetBookingForUser(ctx, b.ID, 8)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	got, err := s.GetBookingForUser(ctx, b.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, got.Seats)

	list, err := s.ListByUser(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryBookingsStalePending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookings()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateBooking(ctx, &model.Booking{UserID: 1, MovieID: 1, Showtime: "18:00", Seats: []string{"A1"}}))
	}
	_, _, err := s.ChangeStatus(ctx, 1, model.MarkPaid)
	require.NoError(t, err)

	stale, err := s.ListStalePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	stale, err = s.ListStalePending(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestMemoryIdentity(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUsers()
	u, err := users.Create(ctx, "alice", "Alice@Example.com", "secret123", false, 4)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role())

	_, err = users.Create(ctx, "alice", "other@example.com", "secret123", false, 4)
	assert.ErrorIs(t, err, ErrUsernameExists)
	_, err = users.Create(ctx, "bob", "alice@example.com", "secret123", false, 4)
	assert.ErrorIs(t, err, ErrEmailExists)

	byEmail, err := users.GetByLogin(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	require.NoError(t, users.SetStaff(ctx, "alice", true))
	admin, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role())

	tokens := NewMemoryTokens()
	require.NoError(t, tokens.StoreRefresh(ctx, u.ID, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, u.ID, "h2", time.Now().Add(-time.Hour)))
	id, err := tokens.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	_, err = tokens.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	require.NoError(t, tokens.RevokeAllForUser(ctx, u.ID))
	_, err = tokens.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
