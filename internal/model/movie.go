package model

import "time"

// DefaultCapacity is the number of seats sold per showtime unless a
// movie overrides it.
const DefaultCapacity = 30

// Movie represents a catalog entry together with its screening schedule.
// It corresponds to a row in the `movies` table joined with its
// `movie_showtimes` and `booked_seats` rows.
//
// Fields:
//
//	ID          – primary key identifier (movies.id).
//	Title       – display title, required.
//	Genre       – free-form genre label used by the catalog filter.
//	Duration    – running time in minutes (nil if unknown).
//	Poster      – poster URL or path (nil if none).
//	Showtimes   – ordered list of showtime labels, e.g. "13:00".
//	Capacity    – seat capacity per showtime label.
//	BookedSeats – seat codes currently held per showtime label.  A
//	              missing key means no seats are booked.
type Movie struct {
	ID          uint64              `json:"movie_id"`
	Title       string              `json:"title"`
	Genre       string              `json:"genre"`
	Duration    *int                `json:"duration,omitempty"`
	Poster      *string             `json:"poster,omitempty"`
	Showtimes   []string            `json:"showtimes"`
	Capacity    map[string]int      `json:"capacity"`
	BookedSeats map[string][]string `json:"booked_seats"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// MovieInput carries the mutable fields of a movie for create and
// update operations.  Showtimes are expected to be trimmed already.
type MovieInput struct {
	Title     string
	Genre     string
	Duration  *int
	Poster    *string
	Showtimes []string
}

// MovieFilter narrows a catalog listing.  Title matches as a
// case-insensitive substring; Genre must match exactly unless it is
// empty or "all".
type MovieFilter struct {
	Title string
	Genre string
}

// HasShowtime reports whether label is one of the movie's showtimes.
func (m *Movie) HasShowtime(label string) bool {
	for _, s := range m.Showtimes {
		if s == label {
			return true
		}
	}
	return false
}

// CapacityFor returns the seat capacity of a showtime, falling back to
// DefaultCapacity when none was recorded.
func (m *Movie) CapacityFor(label string) int {
	if c, ok := m.Capacity[label]; ok {
		return c
	}
	return DefaultCapacity
}

// Clone returns a deep copy so callers can hand out movies without
// sharing the maps and slices held by a store.
func (m *Movie) Clone() *Movie {
	out := *m
	out.Showtimes = append([]string(nil), m.Showtimes...)
	out.Capacity = make(map[string]int, len(m.Capacity))
	for k, v := range m.Capacity {
		out.Capacity[k] = v
	}
	out.BookedSeats = make(map[string][]string, len(m.BookedSeats))
	for k, v := range m.BookedSeats {
		out.BookedSeats[k] = append([]string(nil), v...)
	}
	if m.Duration != nil {
		d := *m.Duration
		out.Duration = &d
	}
	if m.Poster != nil {
		p := *m.Poster
		out.Poster = &p
	}
	return &out
}

// MoviePatch carries a partial update.  Nil fields keep their current
// value.
type MoviePatch struct {
	Title     *string
	Genre     *string
	Duration  *int
	Poster    *string
	Showtimes []string
}

// Apply overlays the patch on the movie's current fields and returns
// the resulting full input.
func (p MoviePatch) Apply(m *Movie) MovieInput {
	in := MovieInput{
		Title:     m.Title,
		Genre:     m.Genre,
		Duration:  m.Duration,
		Poster:    m.Poster,
		Showtimes: m.Showtimes,
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Genre != nil {
		in.Genre = *p.Genre
	}
	if p.Duration != nil {
		in.Duration = p.Duration
	}
	if p.Poster != nil {
		in.Poster = p.Poster
	}
	if p.Showtimes != nil {
		in.Showtimes = p.Showtimes
	}
	return in
}
