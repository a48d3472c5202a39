// Package queue carries booking events over RabbitMQ.  The approval
// path publishes BookingApprovedEvent; the consumer renders the QR
// ticket and emails it, outside the request that approved the booking.
package queue

import (
	"context"
	"time"
)

// DefaultQueue is the durable queue approvals are routed to.
const DefaultQueue = "booking.approved"

// BookingApprovedEvent is published when an admin approves a paid
// booking.  It contains enough information for the ticket consumer to
// render and send the ticket without querying the primary database.
type BookingApprovedEvent struct {
	EventID    string    `json:"event_id"`
	BookingID  uint64    `json:"booking_id"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email"`
	MovieID    uint64    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Showtime   string    `json:"showtime"`
	Seats      []string  `json:"seats"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Publisher sends approval events.
type Publisher interface {
	PublishBookingApproved(ctx context.Context, ev BookingApprovedEvent) error
}

// Handler processes approval events.
type Handler interface {
	HandleBookingApproved(ctx context.Context, ev BookingApprovedEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev BookingApprovedEvent) error

func (f HandlerFunc) HandleBookingApproved(ctx context.Context, ev BookingApprovedEvent) error {
	return f(ctx, ev)
}
