package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockGateway implements Gateway without a provider.  A session stays
// open until the customer lands on the success URL, which counts as
// paying, or until it is expired.  Webhooks are plain JSON
// signed with HMAC-SHA256 of the body when a secret is configured.
type MockGateway struct {
	pricing  Pricing
	secret   string
	mu       sync.Mutex
	sessions map[string]SessionStatus
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway(pricing Pricing, webhookSecret string) *MockGateway {
	return &MockGateway{pricing: pricing, secret: webhookSecret, sessions: make(map[string]SessionStatus)}
}

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("checkout quantity must be positive")
	}
	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	g.mu.Lock()
	g.sessions[id] = SessionStatus{SessionID: id, BookingID: req.BookingID}
	g.mu.Unlock()
	url := strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id)
	return g.pricing.checkout(id, url, req.Quantity), nil
}

// VerifyCheckout pays an open session.
func (g *MockGateway) VerifyCheckout(ctx context.Context, sessionID string) (*SessionStatus, error) {
	return g.settle(sessionID, func(st *SessionStatus) { st.Paid = true })
}

// ExpireCheckout expires an open session.  Sessions this gateway never
// opened cannot be paid through it and are reported as expired.
func (g *MockGateway) ExpireCheckout(ctx context.Context, sessionID string) (*SessionStatus, error) {
	st, err := g.settle(sessionID, func(st *SessionStatus) { st.Expired = true })
	if errors.Is(err, ErrUnknownSession) {
		return &SessionStatus{SessionID: sessionID, Expired: true}, nil
	}
	return st, err
}

// Expire marks a session as expired and unpaid.
func (g *MockGateway) Expire(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.sessions[sessionID]; ok {
		st.Paid, st.Expired = false, true
		g.sessions[sessionID] = st
	}
}

// Pay marks an open session as paid without a redirect, the way a
// customer who closes the tab after paying leaves it.
func (g *MockGateway) Pay(sessionID string) {
	_, _ = g.settle(sessionID, func(st *SessionStatus) { st.Paid = true })
}

// settle changes the session only while it is still open and returns
// the resulting state.
func (g *MockGateway) settle(sessionID string, apply func(*SessionStatus)) (*SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	if !st.Paid && !st.Expired {
		apply(&st)
		g.sessions[sessionID] = st
	}
	return &st, nil
}

type mockWebhook struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	BookingID string `json:"booking_id"`
}

// Sign returns the signature ParseWebhook expects for payload.
func (g *MockGateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *MockGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.secret != "" && !hmac.Equal([]byte(signature), []byte(g.Sign(payload))) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidWebhook)
	}
	var w mockWebhook
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	st := SessionStatus{SessionID: w.SessionID, BookingID: parseBookingID(w.BookingID)}
	g.mu.Lock()
	if known, ok := g.sessions[w.SessionID]; ok {
		st = known
	}
	g.mu.Unlock()
	switch w.Type {
	case EventCheckoutCompleted:
		st.Paid, st.Expired = true, false
	case EventCheckoutExpired:
		st.Paid, st.Expired = false, true
	}
	if st.BookingID == 0 {
		return nil, fmt.Errorf("%w: booking_id %s", ErrInvalidWebhook, strconv.Quote(w.BookingID))
	}
	return &WebhookEvent{ID: w.ID, Type: w.Type, Session: st}, nil
}
