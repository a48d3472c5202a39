// Package service holds the core operations behind the HTTP handlers:
// catalog management, the booking lifecycle, checkout and ticket
// delivery.  Every operation takes the caller's auth.Principal
// explicitly.
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/auth"
	"github.com/iliyamo/movieflex/internal/ledger"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/repository"
)

// Invalidator drops cached catalog responses after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

func invalidate(ctx context.Context, inv Invalidator, log *zap.Logger) {
	if inv == nil {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// CatalogService manages movies.  Reads are public; writes need an
// administrator.
type CatalogService struct {
	store repository.CatalogStore
	cache Invalidator
	log   *zap.Logger
}

func NewCatalogService(store repository.CatalogStore, cache Invalidator, log *zap.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, log: log.Named("catalog")}
}

func normalizeInput(in model.MovieInput) model.MovieInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Showtimes = ledger.NormalizeShowtimes(in.Showtimes)
	if in.Poster != nil && strings.TrimSpace(*in.Poster) == "" {
		in.Poster = nil
	}
	return in
}

func (s *CatalogService) Create(ctx context.Context, p auth.Principal, in model.MovieInput) (*model.Movie, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	m, err := s.store.CreateMovie(ctx, normalizeInput(in))
	if err != nil {
		return nil, err
	}
	s.log.Info("movie created", zap.Uint64("movie_id", m.ID), zap.String("by", p.Username))
	invalidate(ctx, s.cache, s.log)
	return m, nil
}

// Update replaces every mutable field.  Showtimes that are no longer
// offered lose their booked seats; bookings holding those seats keep
// their snapshot and are reported in the log.
func (s *CatalogService) Update(ctx context.Context, p auth.Principal, id uint64, in model.MovieInput) (*model.Movie, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	before, err := s.store.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}
	in = normalizeInput(in)
	m, err := s.store.UpdateMovie(ctx, id, in)
	if err != nil {
		return nil, err
	}
	for _, st := range ledger.DroppedShowtimes(before.Showtimes, in.Showtimes) {
		if seats := before.BookedSeats[st]; len(seats) > 0 {
			s.log.Warn("showtime removed with booked seats",
				zap.Uint64("movie_id", id), zap.String("showtime", st), zap.Strings("seats", seats))
		}
	}
	s.log.Info("movie updated", zap.Uint64("movie_id", id), zap.String("by", p.Username))
	invalidate(ctx, s.cache, s.log)
	return m, nil
}

// Patch applies a partial update on top of the stored movie.
func (s *CatalogService) Patch(ctx context.Context, p auth.Principal, id uint64, patch model.MoviePatch) (*model.Movie, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	cur, err := s.store.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, p, id, patch.Apply(cur))
}

func (s *CatalogService) Get(ctx context.Context, id uint64) (*model.Movie, error) {
	return s.store.GetMovie(ctx, id)
}

// List returns the filtered movies together with every known genre,
// for building a filter menu.
func (s *CatalogService) List(ctx context.Context, f model.MovieFilter) ([]model.Movie, []string, error) {
	movies, err := s.store.ListMovies(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	genres, err := s.store.Genres(ctx)
	if err != nil {
		return nil, nil, err
	}
	return movies, genres, nil
}

// Delete removes the movie.  Bookings that reference it are left alone.
func (s *CatalogService) Delete(ctx context.Context, p auth.Principal, id uint64) error {
	if err := p.RequireAdmin(); err != nil {
		return err
	}
	if err := s.store.DeleteMovie(ctx, id); err != nil {
		return err
	}
	s.log.Info("movie deleted", zap.Uint64("movie_id", id), zap.String("by", p.Username))
	invalidate(ctx, s.cache, s.log)
	return nil
}
