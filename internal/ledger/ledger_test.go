package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

func newMovie(showtimes ...string) *model.Movie {
	m := &model.Movie{ID: 1, Title: "Inception", Genre: "Sci-Fi", BookedSeats: map[string][]string{}}
	Reconcile(m, showtimes)
	return m
}

func TestNormalizeSeats(t *testing.T) {
	got := NormalizeSeats([]string{" a1, A2 ", "a1", "", "b3"})
	assert.Equal(t, []string{"A1", "A2", "B3"}, got)
	assert.Empty(t, NormalizeSeats([]string{" , ,"}))
}

func TestNormalizeShowtimes(t *testing.T) {
	assert.Equal(t, []string{"13:00", "17:00"}, NormalizeShowtimes([]string{"13:00, 17:00", "13:00"}))
}

func TestReserveInceptionScenario(t *testing.T) {
	m := newMovie("18:00")
	require.Equal(t, 30, Available(m, "18:00"))

	require.NoError(t, Reserve(m, "18:00", []string{"A1", "A2"}))
	assert.Equal(t, 28, Available(m, "18:00"))

	err := Reserve(m, "18:00", []string{"A2", "A3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSeatConflict))
	seats, ok := domain.ConflictingSeats(err)
	require.True(t, ok)
	assert.Equal(t, []string{"A2"}, seats)
	assert.Equal(t, 28, Available(m, "18:00"))
	assert.ElementsMatch(t, []string{"A1", "A2"}, m.BookedSeats["18:00"])
}

func TestReserveUnknownShowtimeDoesNotMutate(t *testing.T) {
	m := newMovie("18:00")
	err := Reserve(m, "21:00", []string{"A1"})
	assert.ErrorIs(t, err, domain.ErrInvalidShowtime)
	assert.Empty(t, m.BookedSeats)
	assert.Equal(t, 0, Available(m, "21:00"))
}

func TestReserveRequiresSeats(t *testing.T) {
	m := newMovie("18:00")
	assert.ErrorIs(t, Reserve(m, "18:00", nil), domain.ErrValidation)
}

func TestAvailableNeverNegative(t *testing.T) {
	m := newMovie("18:00")
	m.Capacity["18:00"] = 2
	require.NoError(t, Reserve(m, "18:00", []string{"A1", "A2", "A3"}))
	assert.Equal(t, 0, Available(m, "18:00"))
}

func TestAvailabilityMatchesBookedCounts(t *testing.T) {
	m := newMovie("13:00", "17:00")
	requests := [][]string{{"A1"}, {"A2", "A3"}, {"B1", "B2", "B3", "B4"}}
	for _, r := range requests {
		require.NoError(t, Reserve(m, "13:00", r))
		assert.Equal(t, m.CapacityFor("13:00")-len(m.BookedSeats["13:00"]), Available(m, "13:00"))
	}
	assert.Equal(t, map[string]int{"13:00": 23, "17:00": 30}, Availability(m))
}

func TestRelease(t *testing.T) {
	m := newMovie("18:00")
	require.NoError(t, Reserve(m, "18:00", []string{"A1", "A2"}))

	assert.Equal(t, 1, Release(m, "18:00", []string{"A2", "Z9"}))
	assert.Equal(t, []string{"A1"}, m.BookedSeats["18:00"])

	assert.Equal(t, 1, Release(m, "18:00", []string{"A1"}))
	_, present := m.BookedSeats["18:00"]
	assert.False(t, present)
	assert.Equal(t, 0, Release(m, "18:00", []string{"A1"}))
}

func TestReconcileDropsRemovedShowtimes(t *testing.T) {
	m := newMovie("13:00", "17:00")
	m.Capacity["13:00"] = 40
	require.NoError(t, Reserve(m, "13:00", []string{"A1"}))
	require.NoError(t, Reserve(m, "17:00", []string{"B1"}))

	dropped := Reconcile(m, []string{"13:00", "21:00"})

	assert.Equal(t, []string{"17:00"}, dropped)
	assert.Equal(t, []string{"13:00", "21:00"}, m.Showtimes)
	assert.Equal(t, map[string]int{"13:00": 40, "21:00": model.DefaultCapacity}, m.Capacity)
	assert.Equal(t, map[string][]string{"13:00": {"A1"}}, m.BookedSeats)
}

func TestOverlapAndDroppedShowtimes(t *testing.T) {
	assert.Equal(t, []string{"A1", "C3"}, Overlap([]string{"C3", "A1", "B2"}, []string{"C3", "A1", "D4"}))
	assert.Nil(t, Overlap(nil, []string{"A1"}))
	assert.Equal(t, []string{"17:00"}, DroppedShowtimes([]string{"13:00", "17:00"}, []string{"13:00"}))
}
