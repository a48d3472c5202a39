// Package metrics registers the Prometheus collectors exported on
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reservation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieflex_seat_reservations_total",
			Help: "Seat reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	reserveLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movieflex_seat_reserve_duration_seconds",
			Help:    "Time spent reserving seats, including the booking insert",
			Buckets: prometheus.DefBuckets,
		},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieflex_booking_transitions_total",
			Help: "Booking status transitions by name and result",
		},
		[]string{"transition", "result"},
	)

	seatsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movieflex_seats_released_total",
			Help: "Seats returned to the pool by cancellation, rejection or expiry",
		},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieflex_side_effect_failures_total",
			Help: "Failed post-approval side effects (publish, ticket, email)",
		},
		[]string{"kind"},
	)
)

// ObserveReservation records the outcome and latency of a booking
// creation attempt.
func ObserveReservation(outcome string, took time.Duration) {
	reservations.WithLabelValues(outcome).Inc()
	reserveLatency.Observe(took.Seconds())
}

// Transition records a lifecycle transition.  result is "applied",
// "noop" or "rejected".
func Transition(name, result string) {
	transitions.WithLabelValues(name, result).Inc()
}

// SeatsReleased adds n released seats.
func SeatsReleased(n int) {
	if n > 0 {
		seatsReleased.Add(float64(n))
	}
}

// SideEffectFailed counts a failed publish, ticket render or email send.
func SideEffectFailed(kind string) {
	sideEffectFailures.WithLabelValues(kind).Inc()
}
