package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/auth"
	"github.com/iliyamo/movieflex/internal/config"
	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/ledger"
	"github.com/iliyamo/movieflex/internal/metrics"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/payment"
	"github.com/iliyamo/movieflex/internal/queue"
	"github.com/iliyamo/movieflex/internal/repository"
	"github.com/iliyamo/movieflex/internal/ticket"
)

// UserDirectory resolves a booking owner's contact address.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// CheckoutCloser closes the checkout session a booking is waiting on.
// payment.Gateway implements it.
type CheckoutCloser interface {
	ExpireCheckout(ctx context.Context, sessionID string) (*payment.SessionStatus, error)
}

// BookingService drives a booking from creation through payment to the
// admin decision.  Seats are reserved in the catalog store before the
// booking row exists; if the booking cannot be stored the seats are
// given back.
type BookingService struct {
	catalog  repository.CatalogStore
	bookings repository.BookingStore
	users    UserDirectory
	events   queue.Publisher
	cache     Invalidator
	checkouts CheckoutCloser
	cfg       config.BookingConfig
	log       *zap.Logger
	now       func() time.Time
}

// BookingDeps groups the collaborators of a BookingService.  Cache and
// Checkouts may be nil; without Checkouts the sweeper cannot close
// open checkout sessions and leaves bookings that have one alone.
type BookingDeps struct {
	Catalog   repository.CatalogStore
	Bookings  repository.BookingStore
	Users     UserDirectory
	Events    queue.Publisher
	Cache     Invalidator
	Checkouts CheckoutCloser
	Config    config.BookingConfig
	Log       *zap.Logger
}

func NewBookingService(d BookingDeps) *BookingService {
	return &BookingService{
		catalog:   d.Catalog,
		bookings:  d.Bookings,
		users:     d.Users,
		events:    d.Events,
		cache:     d.Cache,
		checkouts: d.Checkouts,
		cfg:       d.Config,
		log:       d.Log.Named("booking"),
		now:       time.Now,
	}
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case domain.IsConflict(err):
		return metrics.OutcomeConflict
	case domain.IsValidation(err), domain.IsNotFound(err):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}

// Create reserves seats for the caller and records the booking with
// both statuses Pending.  Seat codes are normalised first.
func (s *BookingService) Create(ctx context.Context, p auth.Principal, movieID uint64, showtime string, seats []string) (b *model.Booking, err error) {
	if err := p.RequireUser(); err != nil {
		return nil, err
	}
	start := s.now()
	defer func() { metrics.ObserveReservation(reservationOutcome(err), s.now().Sub(start)) }()

	showtime = strings.TrimSpace(showtime)
	seats = ledger.NormalizeSeats(seats)
	if showtime == "" {
		return nil, domain.Validation("showtime is required")
	}
	if len(seats) == 0 {
		return nil, domain.Validation("at least one seat is required")
	}

	if err := s.catalog.ReserveSeats(ctx, movieID, showtime, seats); err != nil {
		return nil, err
	}

	b = &model.Booking{
		UserID:   p.UserID,
		MovieID:  movieID,
		Showtime: showtime,
		Seats:    seats,
	}
	if err := s.bookings.CreateBooking(ctx, b); err != nil {
		if _, rerr := s.catalog.ReleaseSeats(context.WithoutCancel(ctx), movieID, showtime, seats); rerr != nil {
			s.log.Error("seats left held after failed booking insert",
				zap.Uint64("movie_id", movieID), zap.String("showtime", showtime),
				zap.Strings("seats", seats), zap.Error(rerr))
		}
		return nil, fmt.Errorf("store booking: %w", err)
	}
	s.log.Info("booking created",
		zap.Uint64("booking_id", b.ID), zap.Uint64("user_id", b.UserID),
		zap.Uint64("movie_id", movieID), zap.String("showtime", showtime), zap.Strings("seats", seats))
	invalidate(ctx, s.cache, s.log)
	return b, nil
}

// Get returns a booking visible to the caller.  Other users' bookings
// are reported as not found.
func (s *BookingService) Get(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	if err := p.RequireUser(); err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return s.bookings.GetBooking(ctx, id)
	}
	return s.bookings.GetBookingForUser(ctx, id, p.UserID)
}

func (s *BookingService) ListByUser(ctx context.Context, p auth.Principal) ([]model.Booking, error) {
	if err := p.RequireUser(); err != nil {
		return nil, err
	}
	return s.bookings.ListByUser(ctx, p.UserID)
}

func (s *BookingService) ListPendingApproval(ctx context.Context, p auth.Principal) ([]model.Booking, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.bookings.ListPendingApproval(ctx)
}

// owned checks that a non-system caller owns the booking before a
// payment transition.
func (s *BookingService) owned(ctx context.Context, p auth.Principal, id uint64) error {
	if p.System {
		return nil
	}
	_, err := s.Get(ctx, p, id)
	return err
}

// transition applies sc.  A booking already in the target state is a
// no-op; any other precondition failure is ErrInvalidTransition.
func (s *BookingService) transition(ctx context.Context, name string, id uint64, sc model.StatusChange) (*model.Booking, bool, error) {
	b, applied, err := s.bookings.ChangeStatus(ctx, id, sc)
	if err != nil {
		return nil, false, err
	}
	if applied {
		metrics.Transition(name, "applied")
		return b, true, nil
	}
	if sc.Reached(b) {
		metrics.Transition(name, "noop")
		return b, false, nil
	}
	metrics.Transition(name, "rejected")
	return b, false, fmt.Errorf("%w: cannot %s booking %d with payment %s and approval %s",
		domain.ErrInvalidTransition, name, id, b.PaymentStatus, b.ApprovalStatus)
}

// MarkPaid records a completed payment.  Repeating it is a no-op.
func (s *BookingService) MarkPaid(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	if err := s.owned(ctx, p, id); err != nil {
		return nil, err
	}
	b, applied, err := s.transition(ctx, "mark_paid", id, model.MarkPaid)
	if err != nil {
		return b, err
	}
	if applied {
		s.log.Info("booking paid", zap.Uint64("booking_id", id))
	}
	return b, nil
}

// CancelPayment marks an unpaid booking as cancelled and, under the
// release policy, gives its seats back.
func (s *BookingService) CancelPayment(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	if err := s.owned(ctx, p, id); err != nil {
		return nil, err
	}
	b, applied, err := s.transition(ctx, "cancel_payment", id, model.CancelPayment)
	if err != nil {
		return b, err
	}
	if applied {
		s.log.Info("booking payment cancelled", zap.Uint64("booking_id", id), zap.String("by", p.Username))
		s.releaseSeats(ctx, b)
	}
	return b, nil
}

// Approve confirms a paid booking and announces it so the ticket can be
// rendered and mailed.  Announcement failures are logged only.
func (s *BookingService) Approve(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	b, applied, err := s.transition(ctx, "approve", id, model.Approve)
	if err != nil {
		return b, err
	}
	if applied {
		s.log.Info("booking approved", zap.Uint64("booking_id", id), zap.String("by", p.Username))
		s.announceApproval(ctx, p, b)
	}
	return b, nil
}

// Reject declines a paid booking.  Under the release policy its seats
// return to the pool.
func (s *BookingService) Reject(ctx context.Context, p auth.Principal, id uint64) (*model.Booking, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	b, applied, err := s.transition(ctx, "reject", id, model.Reject)
	if err != nil {
		return b, err
	}
	if applied {
		s.log.Info("booking rejected", zap.Uint64("booking_id", id), zap.String("by", p.Username))
		s.releaseSeats(ctx, b)
	}
	return b, nil
}

// ExpireStale cancels bookings that have waited for payment longer than
// the hold TTL and returns how many were cancelled.  A booking with a
// checkout session is cancelled only after the provider has closed that
// session; if the customer paid first the booking is marked paid
// instead.
func (s *BookingService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.HoldTTL)
	stale, err := s.bookings.ListStalePending(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		log := s.log.With(zap.Uint64("booking_id", b.ID))
		paid, err := s.closeCheckout(ctx, &b)
		if err != nil {
			log.Warn("close checkout failed; booking kept", zap.Error(err))
			continue
		}
		if paid {
			if _, err := s.MarkPaid(ctx, auth.System(), b.ID); err != nil && !domain.IsConflict(err) {
				log.Warn("mark paid failed", zap.Error(err))
			}
			continue
		}
		if _, err := s.CancelPayment(ctx, auth.System(), b.ID); err != nil {
			// Paid in the meantime.
			if domain.IsConflict(err) {
				continue
			}
			log.Warn("expire booking failed", zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.Info("expired unpaid bookings", zap.Int("count", expired), zap.Time("cutoff", cutoff))
	}
	return expired, nil
}

// closeCheckout expires the booking's checkout session, if it has one,
// and reports whether the session had already been paid.
func (s *BookingService) closeCheckout(ctx context.Context, b *model.Booking) (bool, error) {
	if b.PaymentRef == nil || *b.PaymentRef == "" {
		return false, nil
	}
	if s.checkouts == nil {
		return false, fmt.Errorf("no gateway to close session %s", *b.PaymentRef)
	}
	st, err := s.checkouts.ExpireCheckout(ctx, *b.PaymentRef)
	if err != nil {
		return false, err
	}
	return st.Paid, nil
}

// SetPaymentRef stores the checkout session started for a booking.
func (s *BookingService) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	return s.bookings.SetPaymentRef(ctx, id, ref)
}

func (s *BookingService) releaseSeats(ctx context.Context, b *model.Booking) {
	if !s.cfg.ReleaseOnCancel() {
		return
	}
	n, err := s.catalog.ReleaseSeats(ctx, b.MovieID, b.Showtime, b.Seats)
	if err != nil {
		// A deleted movie has nothing left to release.
		if !domain.IsNotFound(err) {
			s.log.Warn("release seats failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
		}
		return
	}
	metrics.SeatsReleased(n)
	if n > 0 {
		s.log.Info("seats released", zap.Uint64("booking_id", b.ID), zap.Int("count", n))
		invalidate(ctx, s.cache, s.log)
	}
}

// MovieTitle returns the movie's title or "Movie #<id>" once the movie
// is gone.
func (s *BookingService) MovieTitle(ctx context.Context, movieID uint64) string {
	m, err := s.catalog.GetMovie(ctx, movieID)
	if err != nil {
		return ticket.MovieTitle(nil, movieID)
	}
	return ticket.MovieTitle(m, movieID)
}

func (s *BookingService) announceApproval(ctx context.Context, p auth.Principal, b *model.Booking) {
	ev := queue.BookingApprovedEvent{
		BookingID:  b.ID,
		UserID:     b.UserID,
		MovieID:    b.MovieID,
		MovieTitle: s.MovieTitle(ctx, b.MovieID),
		Showtime:   b.Showtime,
		Seats:      b.Seats,
		ApprovedBy: p.Username,
		ApprovedAt: s.now().UTC(),
	}
	if u, err := s.users.GetByID(ctx, b.UserID); err == nil {
		ev.Email = u.Email
	} else {
		s.log.Warn("no recipient for ticket", zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
	if err := s.events.PublishBookingApproved(ctx, ev); err != nil {
		metrics.SideEffectFailed("publish")
		s.log.Error("publish booking approval failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
}
