package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe only accepts expires_at between 30 minutes and 24 hours after
// the session is created.
const (
	minSessionTTL = 31 * time.Minute
	maxSessionTTL = 24 * time.Hour
)

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	pricing       Pricing
	webhookSecret string
}

// NewStripeGateway creates a new Stripe gateway.  The API key is set
// globally on the stripe package.
func NewStripeGateway(secretKey, webhookSecret string, pricing Pricing) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeGateway{pricing: pricing, webhookSecret: webhookSecret}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

// CreateCheckout opens a Checkout Session charging the seat price times
// the seat count.  The booking ID doubles as the idempotency key so a
// retried request does not open a second session.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("checkout quantity must be positive")
	}
	bookingID := strconv.FormatUint(req.BookingID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.pricing.Currency),
				UnitAmount: stripe.Int64(g.pricing.UnitAmount()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(int64(req.Quantity)),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(bookingID),
	}
	params.ExpiresAt = stripe.Int64(sessionDeadline(time.Now(), req.ExpiresAt).Unix())
	params.AddMetadata("booking_id", bookingID)
	params.SetIdempotencyKey("checkout-booking-" + bookingID)

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return g.pricing.checkout(s.ID, s.URL, req.Quantity), nil
}

// VerifyCheckout fetches the session and reports whether it was paid.
func (g *StripeGateway) VerifyCheckout(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, ErrUnknownSession
	}
	params := &stripe.CheckoutSessionParams{}
	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return sessionStatus(s), nil
}

// ExpireCheckout expires the session if it is still open.  Completed
// and already expired sessions are reported as they are.
func (g *StripeGateway) ExpireCheckout(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, ErrUnknownSession
	}
	s, err := session.Get(sessionID, &stripe.CheckoutSessionParams{})
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	if s.Status != stripe.CheckoutSessionStatusOpen {
		return sessionStatus(s), nil
	}
	s, err = session.Expire(sessionID, &stripe.CheckoutSessionExpireParams{})
	if err != nil {
		return nil, fmt.Errorf("expire checkout session: %w", err)
	}
	return sessionStatus(s), nil
}

// sessionDeadline clamps want into the window Stripe accepts.
func sessionDeadline(now, want time.Time) time.Time {
	switch {
	case want.Before(now.Add(minSessionTTL)):
		return now.Add(minSessionTTL)
	case want.After(now.Add(maxSessionTTL)):
		return now.Add(maxSessionTTL)
	}
	return want
}

// ParseWebhook verifies the Stripe-Signature header and decodes
// checkout session events.  Other event types come back with an empty
// Session.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		out.Session = *sessionStatus(&s)
	}
	return out, nil
}

func sessionStatus(s *stripe.CheckoutSession) *SessionStatus {
	id := parseBookingID(s.Metadata["booking_id"])
	if id == 0 {
		id = parseBookingID(s.ClientReferenceID)
	}
	return &SessionStatus{
		SessionID: s.ID,
		BookingID: id,
		Paid:      s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired:   s.Status == stripe.CheckoutSessionStatusExpired,
	}
}
