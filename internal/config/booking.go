package config

import (
	"log"
	"strings"
	"time"
)

// Release policies for seats held by a booking that is rejected or whose
// payment is cancelled.
const (
	ReleaseSeats = "release"
	RetainSeats  = "retain"
)

// BookingConfig tunes the booking lifecycle.
type BookingConfig struct {
	HoldTTL       time.Duration // unpaid bookings older than this are cancelled by the sweeper; also the checkout session lifetime
	SweepInterval time.Duration // how often the sweeper runs; 0 disables it
	SweepBatch    int           // max bookings cancelled per sweep
	ReleasePolicy string        // ReleaseSeats or RetainSeats
}

func LoadBookingConfig() BookingConfig {
	cfg := BookingConfig{
		HoldTTL:       envDur("BOOKING_HOLD_TTL", 30*time.Minute),
		SweepInterval: envDur("BOOKING_SWEEP_INTERVAL", time.Minute),
		SweepBatch:    envInt("BOOKING_SWEEP_BATCH", 100),
		ReleasePolicy: strings.ToLower(envStr("BOOKING_RELEASE_POLICY", ReleaseSeats)),
	}
	if cfg.ReleasePolicy != ReleaseSeats && cfg.ReleasePolicy != RetainSeats {
		log.Fatalf("invalid BOOKING_RELEASE_POLICY %q", cfg.ReleasePolicy)
	}
	if cfg.SweepBatch < 1 {
		cfg.SweepBatch = 100
	}
	return cfg
}

// ReleaseOnCancel reports whether cancelled or rejected bookings give
// their seats back.
func (c BookingConfig) ReleaseOnCancel() bool { return c.ReleasePolicy != RetainSeats }

// Payment providers.
const (
	PaymentStripe = "stripe"
	PaymentMock   = "mock"
)

// PaymentConfig configures the checkout gateway.  SeatPrice is a decimal
// string in major units ("10.00").
type PaymentConfig struct {
	Provider      string
	StripeKey     string
	WebhookSecret string
	PublicBaseURL string // used to build success and cancel redirect URLs
	SeatPrice     string
	Currency      string
}

func LoadPaymentConfig() PaymentConfig {
	cfg := PaymentConfig{
		Provider:      strings.ToLower(envStr("PAYMENT_PROVIDER", PaymentMock)),
		StripeKey:     envStr("STRIPE_SECRET_KEY", ""),
		WebhookSecret: envStr("STRIPE_WEBHOOK_SECRET", ""),
		PublicBaseURL: strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		SeatPrice:     envStr("SEAT_PRICE", "10.00"),
		Currency:      strings.ToLower(envStr("PAYMENT_CURRENCY", "usd")),
	}
	if cfg.Provider == PaymentStripe && cfg.StripeKey == "" {
		log.Fatalf("missing required env var: STRIPE_SECRET_KEY")
	}
	return cfg
}

// MailConfig configures outgoing SMTP.  An empty Host selects the
// logging mailer.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		Host:     envStr("SMTP_HOST", ""),
		Port:     envInt("SMTP_PORT", 587),
		Username: envStr("SMTP_USER", ""),
		Password: envStr("SMTP_PASS", ""),
		From:     envStr("MAIL_FROM", "tickets@movieflex.local"),
	}
}

// BrokerConfig points at RabbitMQ.  An empty URL keeps ticket delivery
// in process.
type BrokerConfig struct {
	URL   string
	Queue string
}

func LoadBrokerConfig() BrokerConfig {
	url := envStr("RABBITMQ_URL", "")
	if url == "" {
		url = envStr("AMQP_URL", "")
	}
	return BrokerConfig{
		URL:   url,
		Queue: envStr("BOOKING_APPROVED_QUEUE", "booking.approved"),
	}
}
