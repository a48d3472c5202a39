// Package payment wraps the hosted checkout provider.  The booking
// lifecycle only needs three things from it: start a checkout for a
// booking, confirm a finished checkout, and decode provider webhooks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/movieflex/internal/config"
)

// ErrInvalidWebhook is returned for payloads that fail verification or
// cannot be decoded.
var ErrInvalidWebhook = errors.New("invalid webhook payload")

// ErrUnknownSession is returned when a session ID is not known to the
// provider.
var ErrUnknownSession = errors.New("unknown checkout session")

// CheckoutRequest describes one booking being paid for.
type CheckoutRequest struct {
	BookingID   uint64
	Description string
	Quantity    int
	SuccessURL  string // may contain {CHECKOUT_SESSION_ID}
	CancelURL   string
	ExpiresAt   time.Time // zero leaves the provider default
}

// Checkout is a started hosted checkout.
type Checkout struct {
	SessionID string          `json:"session_id"`
	URL       string          `json:"checkout_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

// SessionStatus is what the provider reports about a checkout.
type SessionStatus struct {
	SessionID string
	BookingID uint64
	Paid      bool
	Expired   bool
}

// Event types surfaced by ParseWebhook.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// WebhookEvent is a provider notification about a checkout session.
type WebhookEvent struct {
	ID      string
	Type    string
	Session SessionStatus
}

// Gateway is implemented by StripeGateway and MockGateway.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	VerifyCheckout(ctx context.Context, sessionID string) (*SessionStatus, error)
	// ExpireCheckout closes an open session so it can no longer be paid
	// and reports its final state.  A session that was paid first comes
	// back with Paid set.
	ExpireCheckout(ctx context.Context, sessionID string) (*SessionStatus, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.PaymentConfig) (Gateway, error) {
	pricing, err := NewPricing(cfg.SeatPrice, cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("seat price: %w", err)
	}
	switch cfg.Provider {
	case config.PaymentStripe:
		return NewStripeGateway(cfg.StripeKey, cfg.WebhookSecret, pricing)
	case config.PaymentMock:
		return NewMockGateway(pricing, cfg.WebhookSecret), nil
	}
	return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.Provider)
}

// Pricing is a flat per-seat price.
type Pricing struct {
	SeatPrice decimal.Decimal
	Currency  string
}

// NewPricing parses a decimal seat price such as "10.00".
func NewPricing(seatPrice, currency string) (Pricing, error) {
	p, err := decimal.NewFromString(seatPrice)
	if err != nil {
		return Pricing{}, fmt.Errorf("seat price %q: %w", seatPrice, err)
	}
	if !p.IsPositive() {
		return Pricing{}, fmt.Errorf("seat price %q must be positive", seatPrice)
	}
	return Pricing{SeatPrice: p, Currency: currency}, nil
}

// UnitAmount returns the seat price in the currency's minor unit.
func (p Pricing) UnitAmount() int64 {
	return p.SeatPrice.Shift(2).Round(0).IntPart()
}

// Total returns the price of n seats.
func (p Pricing) Total(n int) decimal.Decimal {
	return p.SeatPrice.Mul(decimal.NewFromInt(int64(n)))
}

func (p Pricing) checkout(sessionID, url string, quantity int) *Checkout {
	return &Checkout{
		SessionID: sessionID,
		URL:       url,
		UnitPrice: p.SeatPrice,
		Quantity:  quantity,
		Total:     p.Total(quantity),
		Currency:  p.Currency,
	}
}

func parseBookingID(s string) uint64 {
	id, _ := strconv.ParseUint(s, 10, 64)
	return id
}
