package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/auth"
	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/notify"
	"github.com/iliyamo/movieflex/internal/payment"
	"github.com/iliyamo/movieflex/internal/queue"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func newCheckout(t *testing.T, f *fixture) (*CheckoutService, *payment.MockGateway) {
	t.Helper()
	pricing, err := payment.NewPricing("10.00", "usd")
	require.NoError(t, err)
	gw := payment.NewMockGateway(pricing, "whsec_test")
	f.svc.checkouts = gw
	return NewCheckoutService(f.svc, gw, "http://localhost:8080", f.log), gw
}

func webhookBody(kind, session string, bookingID uint64) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"session_id":%q,"booking_id":"%d"}`, kind, session, bookingID))
}

func TestCatalogWritesNeedAdmin(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()

	_, err := f.movies.Create(ctx, f.alice, model.MovieInput{Title: "Up", Showtimes: []string{"10:00"}})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.movies.Update(ctx, f.alice, f.movie.ID, model.MovieInput{Title: "Up", Showtimes: []string{"10:00"}})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, f.movies.Delete(ctx, f.alice, f.movie.ID), domain.ErrUnauthorized)

	_, err = f.movies.Create(ctx, f.admin, model.MovieInput{Title: "  ", Showtimes: []string{"10:00"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCatalogListFiltersAndGenres(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	_, err := f.movies.Create(ctx, f.admin, model.MovieInput{Title: "Up", Genre: "Animation", Showtimes: []string{"10:00"}})
	require.NoError(t, err)

	movies, genres, err := f.movies.List(ctx, model.MovieFilter{Title: "incep"})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Inception", movies[0].Title)
	assert.Equal(t, []string{"Animation", "Sci-Fi"}, genres)

	movies, _, err = f.movies.List(ctx, model.MovieFilter{Genre: "Animation"})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Up", movies[0].Title)
}

func TestCatalogUpdateDropsRemovedShowtime(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	b := f.book(t, f.alice, "A1")
	before := f.cache.calls

	m, err := f.movies.Update(ctx, f.admin, f.movie.ID, model.MovieInput{
		Title: "Inception", Genre: "Sci-Fi", Showtimes: []string{"13:00", "21:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"13:00", "21:00"}, m.Showtimes)
	assert.NotContains(t, m.BookedSeats, "17:00")
	assert.Equal(t, 1, f.logs.FilterMessage("showtime removed with booked seats").Len())
	assert.Equal(t, before+1, f.cache.calls)

	// The booking keeps its snapshot.
	got, err := f.svc.Get(ctx, f.alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, got.Seats)
	assert.Equal(t, "17:00", got.Showtime)
}

func TestCatalogPatchKeepsUnsetFields(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	genre := "Thriller"

	m, err := f.movies.Patch(context.Background(), f.admin, f.movie.ID, model.MoviePatch{Genre: &genre})
	require.NoError(t, err)
	assert.Equal(t, "Inception", m.Title)
	assert.Equal(t, "Thriller", m.Genre)
	assert.Equal(t, []string{"13:00", "17:00"}, m.Showtimes)
}

func TestCheckoutStartAndComplete(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	co, gw := newCheckout(t, f)
	b := f.book(t, f.alice, "A1", "A2")

	started, err := co.Start(ctx, f.alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, started.Quantity)
	assert.Equal(t, "20.00", started.Total.StringFixed(2))
	assert.Equal(t, "usd", started.Currency)
	u, err := url.Parse(started.URL)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/v1/bookings/%d/payment/success", b.ID), u.Path)
	assert.Equal(t, started.SessionID, u.Query().Get("session_id"))

	stored, err := f.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, started.SessionID, *stored.PaymentRef)

	_, err = co.Complete(ctx, f.alice, b.ID, "cs_unknown")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = co.Complete(ctx, f.bob, b.ID, started.SessionID)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	paid, err := co.Complete(ctx, f.alice, b.ID, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)

	_, err = co.Start(ctx, f.alice, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// An expired session cannot complete another booking.
	other := f.book(t, f.alice, "A3")
	s2, err := co.Start(ctx, f.alice, other.ID)
	require.NoError(t, err)
	gw.Expire(s2.SessionID)
	_, err = co.Complete(ctx, f.alice, other.ID, s2.SessionID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckoutCancel(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	co, _ := newCheckout(t, f)
	b := f.book(t, f.alice, "A1")

	got, err := co.Cancel(context.Background(), f.alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, got.PaymentStatus)
	assert.Empty(t, f.booked(t, "17:00"))
}

func TestCheckoutWebhook(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	co, gw := newCheckout(t, f)

	paid := f.book(t, f.alice, "A1")
	body := webhookBody(payment.EventCheckoutCompleted, "cs_1", paid.ID)
	require.NoError(t, co.HandleWebhook(ctx, body, gw.Sign(body)))
	got, err := f.bookings.GetBooking(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)

	// Replays are acknowledged.
	require.NoError(t, co.HandleWebhook(ctx, body, gw.Sign(body)))

	expired := f.book(t, f.alice, "A2")
	body = webhookBody(payment.EventCheckoutExpired, "cs_2", expired.ID)
	require.NoError(t, co.HandleWebhook(ctx, body, gw.Sign(body)))
	got, err = f.bookings.GetBooking(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, got.PaymentStatus)

	// A late completion for a cancelled booking is not applied.
	body = webhookBody(payment.EventCheckoutCompleted, "cs_2", expired.ID)
	require.NoError(t, co.HandleWebhook(ctx, body, gw.Sign(body)))
	assert.Equal(t, 1, f.logs.FilterMessage("webhook not applied").Len())

	body = webhookBody(payment.EventCheckoutCompleted, "cs_3", paid.ID)
	assert.ErrorIs(t, co.HandleWebhook(ctx, body, "bogus"), domain.ErrValidation)
}

func TestExpireStaleClosesOpenCheckout(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	co, gw := newCheckout(t, f)
	b := f.book(t, f.alice, "A1")
	started, err := co.Start(ctx, f.alice, b.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The session is closed before the seats go back, so the customer
	// can no longer pay for them.
	st, err := gw.VerifyCheckout(ctx, started.SessionID)
	require.NoError(t, err)
	assert.True(t, st.Expired)
	assert.False(t, st.Paid)
	_, err = co.Complete(ctx, f.alice, b.ID, started.SessionID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(ctx, f.bob, f.movie.ID, "17:00", []string{"A1"})
	assert.NoError(t, err)
}

func TestExpireStaleMarksPaidCheckout(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	co, gw := newCheckout(t, f)
	b := f.book(t, f.alice, "A1")
	started, err := co.Start(ctx, f.alice, b.ID)
	require.NoError(t, err)

	// Paid at the provider, but neither the redirect nor the webhook
	// has arrived yet.
	gw.Pay(started.SessionID)
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.svc.Get(ctx, f.alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, []string{"A1"}, f.booked(t, "17:00"))
	_, err = f.svc.Create(ctx, f.bob, f.movie.ID, "17:00", []string{"A1"})
	assert.ErrorIs(t, err, domain.ErrSeatConflict)

	// The late reports are harmless repeats.
	body := webhookBody(payment.EventCheckoutCompleted, started.SessionID, b.ID)
	require.NoError(t, co.HandleWebhook(ctx, body, gw.Sign(body)))
	assert.Zero(t, f.logs.FilterMessage("webhook not applied").Len())
	paid, err := co.Complete(ctx, f.alice, b.ID, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestTicketDeliveryMailsQRCode(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewTicketDelivery(mailer, zap.NewNop())
	ev := queue.BookingApprovedEvent{
		BookingID: 7, Email: "alice@example.com", MovieTitle: "Inception",
		Showtime: "17:00", Seats: []string{"A1", "A2"},
	}

	require.NoError(t, d.HandleBookingApproved(context.Background(), ev))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Your Movie Ticket - Booking #7", msg.Subject)
	assert.Contains(t, msg.Body, "Seats: A1, A2")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "ticket_7.png", msg.Attachments[0].Name)
	assert.True(t, bytes.HasPrefix(msg.Attachments[0].Data, pngMagic))
}

func TestTicketDeliverySkipsMissingEmail(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewTicketDelivery(mailer, zap.NewNop())
	require.NoError(t, d.HandleBookingApproved(context.Background(), queue.BookingApprovedEvent{BookingID: 1}))
	assert.Empty(t, mailer.sent)
}

func TestTicketDeliveryReturnsMailError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("relay down")}
	d := NewTicketDelivery(mailer, zap.NewNop())
	err := d.HandleBookingApproved(context.Background(), queue.BookingApprovedEvent{
		BookingID: 1, Email: "a@b.c", Showtime: "17:00", Seats: []string{"A1"},
	})
	assert.Error(t, err)
}

func TestTicketImage(t *testing.T) {
	f := newFixture(t, config.ReleaseSeats)
	ctx := context.Background()
	b := f.book(t, f.alice, "A1")

	_, _, err := f.svc.TicketImage(ctx, f.alice, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.MarkPaid(ctx, f.alice, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.admin, b.ID)
	require.NoError(t, err)

	png, name, err := f.svc.TicketImage(ctx, f.alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ticket_%d.png", b.ID), name)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, _, err = f.svc.TicketImage(ctx, f.bob, b.ID)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	_, _, err = f.svc.TicketImage(ctx, auth.Principal{}, b.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
