package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/auth"
	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/payment"
)

// CheckoutService connects the payment gateway to the booking
// lifecycle: it opens checkouts and maps provider reports onto
// MarkPaid and CancelPayment.
type CheckoutService struct {
	bookings *BookingService
	gateway  payment.Gateway
	baseURL  string
	log      *zap.Logger
}

func NewCheckoutService(bookings *BookingService, gateway payment.Gateway, publicBaseURL string, log *zap.Logger) *CheckoutService {
	return &CheckoutService{bookings: bookings, gateway: gateway, baseURL: publicBaseURL, log: log.Named("checkout")}
}

// Start opens a hosted checkout for an unpaid booking owned by the caller.
func (s *CheckoutService) Start(ctx context.Context, p auth.Principal, id uint64) (*payment.Checkout, error) {
	b, err := s.bookings.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != model.PaymentPending {
		return nil, fmt.Errorf("%w: booking %d is %s", domain.ErrInvalidTransition, id, b.PaymentStatus)
	}
	title := s.bookings.MovieTitle(ctx, b.MovieID)
	co, err := s.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		BookingID:   b.ID,
		Description: fmt.Sprintf("Movie Ticket - %s", title),
		Quantity:    len(b.Seats),
		SuccessURL:  fmt.Sprintf("%s/v1/bookings/%d/payment/success?session_id={CHECKOUT_SESSION_ID}", s.baseURL, b.ID),
		CancelURL:   fmt.Sprintf("%s/v1/bookings/%d/payment/cancel", s.baseURL, b.ID),
		ExpiresAt:   s.bookings.now().Add(s.bookings.cfg.HoldTTL),
	})
	if err != nil {
		return nil, err
	}
	if err := s.bookings.SetPaymentRef(ctx, b.ID, co.SessionID); err != nil {
		s.log.Warn("store payment ref failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
	s.log.Info("checkout started", zap.Uint64("booking_id", b.ID),
		zap.String("gateway", s.gateway.Name()), zap.String("session_id", co.SessionID),
		zap.String("total", co.Total.StringFixed(2)))
	return co, nil
}

// Complete confirms the session with the provider and marks the booking
// paid.
func (s *CheckoutService) Complete(ctx context.Context, p auth.Principal, id uint64, sessionID string) (*model.Booking, error) {
	if sessionID == "" {
		return nil, domain.Validation("session_id is required")
	}
	if _, err := s.bookings.Get(ctx, p, id); err != nil {
		return nil, err
	}
	st, err := s.gateway.VerifyCheckout(ctx, sessionID)
	if errors.Is(err, payment.ErrUnknownSession) {
		return nil, domain.Validation("unknown checkout session")
	}
	if err != nil {
		return nil, err
	}
	if st.BookingID != id {
		return nil, domain.Validation("checkout session belongs to another booking")
	}
	if !st.Paid {
		return nil, domain.Validation("checkout session is not paid")
	}
	return s.bookings.MarkPaid(ctx, p, id)
}

// Cancel records that the customer abandoned checkout.
func (s *CheckoutService) Cancel(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	return s.bookings.CancelPayment(ctx, p, id)
}

// HandleWebhook verifies a provider notification and applies it as the
// system principal.  Reports about bookings that already moved on are
// logged and acknowledged.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return domain.Validation(err.Error())
	}
	log := s.log.With(zap.String("event_id", ev.ID), zap.String("type", ev.Type),
		zap.Uint64("booking_id", ev.Session.BookingID))

	switch {
	case ev.Type == payment.EventCheckoutCompleted && ev.Session.Paid:
		_, err = s.bookings.MarkPaid(ctx, auth.System(), ev.Session.BookingID)
	case ev.Type == payment.EventCheckoutExpired:
		_, err = s.bookings.CancelPayment(ctx, auth.System(), ev.Session.BookingID)
	default:
		log.Debug("webhook ignored")
		return nil
	}
	if err != nil && (domain.IsConflict(err) || domain.IsNotFound(err)) {
		log.Warn("webhook not applied", zap.Error(err))
		return nil
	}
	return err
}
