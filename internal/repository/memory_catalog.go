package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/ledger"
	"github.com/iliyamo/movieflex/internal/model"
)

// movieEntry guards one movie.  Seat reservations lock only the entry
// they touch so bookings for different movies never wait on each other.
type movieEntry struct {
	mu    sync.Mutex
	movie *model.Movie
}

// MemoryCatalog is an in-process CatalogStore used by tests and by the
// server when APP_STORE=memory.
type MemoryCatalog struct {
	mu     sync.RWMutex
	movies map[uint64]*movieEntry
	nextID atomic.Uint64
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{movies: make(map[uint64]*movieEntry)}
}

func (s *MemoryCatalog) entry(id uint64) (*movieEntry, error) {
	s.mu.RLock()
	e, ok := s.movies[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrMovieNotFound
	}
	return e, nil
}

func (s *MemoryCatalog) CreateMovie(ctx context.Context, in model.MovieInput) (*model.Movie, error) {
	if err := validateMovieInput(in); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	m := &model.Movie{
		ID:          s.nextID.Add(1),
		Title:       in.Title,
		Genre:       in.Genre,
		Duration:    in.Duration,
		Poster:      in.Poster,
		BookedSeats: make(map[string][]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ledger.Reconcile(m, in.Showtimes)
	s.mu.Lock()
	s.movies[m.ID] = &movieEntry{movie: m}
	s.mu.Unlock()
	return m.Clone(), nil
}

func (s *MemoryCatalog) UpdateMovie(ctx context.Context, id uint64, in model.MovieInput) (*model.Movie, error) {
	if err := validateMovieInput(in); err != nil {
		return nil, err
	}
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.movie
	m.Title = in.Title
	m.Genre = in.Genre
	m.Duration = in.Duration
	m.Poster = in.Poster
	ledger.Reconcile(m, in.Showtimes)
	m.UpdatedAt = time.Now().UTC()
	return m.Clone(), nil
}

func (s *MemoryCatalog) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.movie.Clone(), nil
}

func (s *MemoryCatalog) snapshot() []*model.Movie {
	s.mu.RLock()
	entries := make([]*movieEntry, 0, len(s.movies))
	for _, e := range s.movies {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	out := make([]*model.Movie, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.movie.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryCatalog) ListMovies(ctx context.Context, f model.MovieFilter) ([]model.Movie, error) {
	title := strings.ToLower(strings.TrimSpace(f.Title))
	genre := strings.TrimSpace(f.Genre)
	all := strings.EqualFold(genre, "all")
	out := []model.Movie{}
	for _, m := range s.snapshot() {
		if title != "" && !strings.Contains(strings.ToLower(m.Title), title) {
			continue
		}
		if genre != "" && !all && m.Genre != genre {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryCatalog) Genres(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := []string{}
	for _, m := range s.snapshot() {
		if m.Genre == "" {
			continue
		}
		if _, ok := seen[m.Genre]; !ok {
			seen[m.Genre] = struct{}{}
			out = append(out, m.Genre)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryCatalog) DeleteMovie(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[id]; !ok {
		return domain.ErrMovieNotFound
	}
	delete(s.movies, id)
	return nil
}

func (s *MemoryCatalog) ReserveSeats(ctx context.Context, movieID uint64, showtime string, seats []string) error {
	e, err := s.entry(movieID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ledger.Reserve(e.movie, showtime, seats); err != nil {
		return err
	}
	e.movie.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryCatalog) ReleaseSeats(ctx context.Context, movieID uint64, showtime string, seats []string) (int, error) {
	e, err := s.entry(movieID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := ledger.Release(e.movie, showtime, seats)
	if n > 0 {
		e.movie.UpdatedAt = time.Now().UTC()
	}
	return n, nil
}
