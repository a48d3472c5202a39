// Package ledger derives seat availability from a movie's capacity and
// booked-seat sets.  It holds no state of its own: the functions here
// operate on a model.Movie that the caller has already locked (memory
// store) or loaded inside a transaction (MySQL store).
package ledger

import (
	"sort"
	"strings"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

// NormalizeSeats trims, upper-cases and de-duplicates seat codes while
// keeping the caller's order.  Entries may themselves be comma separated
// ("A1, a2") so that form-style input and JSON arrays share one path.
func NormalizeSeats(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			code := strings.ToUpper(strings.TrimSpace(part))
			if code == "" {
				continue
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// NormalizeShowtimes trims labels, drops empties and duplicates.
func NormalizeShowtimes(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			label := strings.TrimSpace(part)
			if label == "" {
				continue
			}
			if _, dup := seen[label]; dup {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

// Available returns capacity minus booked seats for a showtime, never
// negative.  Unknown showtimes have no seats.
func Available(m *model.Movie, showtime string) int {
	if !m.HasShowtime(showtime) {
		return 0
	}
	free := m.CapacityFor(showtime) - len(m.BookedSeats[showtime])
	if free < 0 {
		return 0
	}
	return free
}

// Availability maps every showtime to its available seat count.
func Availability(m *model.Movie) map[string]int {
	out := make(map[string]int, len(m.Showtimes))
	for _, st := range m.Showtimes {
		out[st] = Available(m, st)
	}
	return out
}

// Overlap returns the requested seats already present in booked, sorted.
func Overlap(booked, requested []string) []string {
	held := make(map[string]struct{}, len(booked))
	for _, s := range booked {
		held[s] = struct{}{}
	}
	var out []string
	for _, s := range requested {
		if _, ok := held[s]; ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Check validates a reservation against the movie without mutating it.
// It returns domain.ErrInvalidShowtime for an unknown showtime, a
// validation error for an empty request, or a *domain.SeatConflictError
// listing the overlapping seats.
func Check(m *model.Movie, showtime string, seats []string) error {
	if !m.HasShowtime(showtime) {
		return domain.ErrInvalidShowtime
	}
	if len(seats) == 0 {
		return domain.Validation("at least one seat is required")
	}
	if overlap := Overlap(m.BookedSeats[showtime], seats); len(overlap) > 0 {
		return &domain.SeatConflictError{Showtime: showtime, Seats: overlap}
	}
	return nil
}

// Reserve checks the request and, when it is conflict free, unions the
// seats into the showtime's booked set.  On error the movie is left
// untouched.
func Reserve(m *model.Movie, showtime string, seats []string) error {
	if err := Check(m, showtime, seats); err != nil {
		return err
	}
	if m.BookedSeats == nil {
		m.BookedSeats = make(map[string][]string)
	}
	m.BookedSeats[showtime] = append(m.BookedSeats[showtime], seats...)
	return nil
}

// Release removes seats from a showtime's booked set and returns how many
// were actually present.  Empty sets are removed from the map.
func Release(m *model.Movie, showtime string, seats []string) int {
	booked := m.BookedSeats[showtime]
	if len(booked) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(seats))
	for _, s := range seats {
		drop[s] = struct{}{}
	}
	kept := booked[:0:0]
	for _, s := range booked {
		if _, ok := drop[s]; !ok {
			kept = append(kept, s)
		}
	}
	released := len(booked) - len(kept)
	if len(kept) == 0 {
		delete(m.BookedSeats, showtime)
	} else {
		m.BookedSeats[showtime] = kept
	}
	return released
}

// Reconcile replaces the movie's showtimes and drops capacity and booked
// seat entries for labels no longer offered.  New labels get the default
// capacity.  It returns the showtimes whose booked seats were dropped.
func Reconcile(m *model.Movie, showtimes []string) []string {
	keep := make(map[string]struct{}, len(showtimes))
	for _, st := range showtimes {
		keep[st] = struct{}{}
	}
	var dropped []string
	for st, seats := range m.BookedSeats {
		if _, ok := keep[st]; !ok {
			if len(seats) > 0 {
				dropped = append(dropped, st)
			}
			delete(m.BookedSeats, st)
		}
	}
	capacity := make(map[string]int, len(showtimes))
	for _, st := range showtimes {
		if c, ok := m.Capacity[st]; ok {
			capacity[st] = c
		} else {
			capacity[st] = model.DefaultCapacity
		}
	}
	m.Capacity = capacity
	m.Showtimes = append([]string(nil), showtimes...)
	sort.Strings(dropped)
	return dropped
}

// DroppedShowtimes lists labels present in before but not in after.
func DroppedShowtimes(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, st := range after {
		keep[st] = struct{}{}
	}
	var out []string
	for _, st := range before {
		if _, ok := keep[st]; !ok {
			out = append(out, st)
		}
	}
	return out
}
