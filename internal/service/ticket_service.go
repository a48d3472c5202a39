package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/auth"
	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/metrics"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/notify"
	"github.com/iliyamo/movieflex/internal/queue"
	"github.com/iliyamo/movieflex/internal/ticket"
)

// TicketDelivery consumes approval events: it renders the QR ticket and
// mails it to the booking owner.
type TicketDelivery struct {
	mailer notify.Mailer
	log    *zap.Logger
}

func NewTicketDelivery(mailer notify.Mailer, log *zap.Logger) *TicketDelivery {
	return &TicketDelivery{mailer: mailer, log: log.Named("ticket")}
}

func (d *TicketDelivery) HandleBookingApproved(ctx context.Context, ev queue.BookingApprovedEvent) error {
	log := d.log.With(zap.Uint64("booking_id", ev.BookingID))
	if ev.Email == "" {
		log.Warn("ticket not mailed, owner has no email")
		return nil
	}
	b := &model.Booking{ID: ev.BookingID, Showtime: ev.Showtime, Seats: ev.Seats}
	png, err := ticket.PNG(b, ev.MovieTitle, ticket.DefaultSize)
	if err != nil {
		metrics.SideEffectFailed("ticket")
		return err
	}
	if err := d.mailer.Send(ctx, notify.TicketMessage(ev.Email, b, ev.MovieTitle, png)); err != nil {
		metrics.SideEffectFailed("email")
		return err
	}
	log.Info("ticket mailed", zap.String("to", ev.Email))
	return nil
}

// TicketImage renders the QR ticket for download.  Only the owner may
// fetch it and only once the booking is approved.
func (s *BookingService) TicketImage(ctx context.Context, p auth.Principal, id uint64) ([]byte, string, error) {
	if err := p.RequireUser(); err != nil {
		return nil, "", err
	}
	b, err := s.bookings.GetBookingForUser(ctx, id, p.UserID)
	if err != nil {
		return nil, "", err
	}
	if b.ApprovalStatus != model.ApprovalApproved {
		return nil, "", fmt.Errorf("%w: booking %d is not approved", domain.ErrInvalidTransition, id)
	}
	png, err := ticket.PNG(b, s.MovieTitle(ctx, b.MovieID), ticket.DefaultSize)
	if err != nil {
		return nil, "", err
	}
	return png, ticket.FileName(b.ID), nil
}
