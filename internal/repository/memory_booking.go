package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

// MemoryBookings is an in-process BookingStore.  IDs come from an atomic
// counter so concurrent creates never collide.
type MemoryBookings struct {
	mu       sync.RWMutex
	bookings map[uint64]*model.Booking
	nextID   atomic.Uint64
}

// NewMemoryBookings creates an empty booking store.
func NewMemoryBookings() *MemoryBookings {
	return &MemoryBookings{bookings: make(map[uint64]*model.Booking)}
}

func (s *MemoryBookings) CreateBooking(ctx context.Context, b *model.Booking) error {
	if len(b.Seats) == 0 {
		return domain.Validation("at least one seat is required")
	}
	now := time.Now().UTC()
	b.ID = s.nextID.Add(1)
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentPending
	}
	if b.ApprovalStatus == "" {
		b.ApprovalStatus = model.ApprovalPending
	}
	b.CreatedAt, b.UpdatedAt = now, now
	s.mu.Lock()
	s.bookings[b.ID] = b.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryBookings) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryBookings) GetBookingForUser(ctx context.Context, id, userID uint64) (*model.Booking, error) {
	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

func (s *MemoryBookings) filter(keep func(*model.Booking) bool) []model.Booking {
	s.mu.RLock()
	out := []model.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, *b.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryBookings) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.filter(func(b *model.Booking) bool { return b.UserID == userID }), nil
}

func (s *MemoryBookings) ListPendingApproval(ctx context.Context) ([]model.Booking, error) {
	return s.filter(func(b *model.Booking) bool {
		return b.PaymentStatus == model.PaymentPaid && b.ApprovalStatus == model.ApprovalPending
	}), nil
}

func (s *MemoryBookings) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Booking, error) {
	out := s.filter(func(b *model.Booking) bool {
		return b.PaymentStatus == model.PaymentPending && b.CreatedAt.Before(createdBefore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryBookings) ChangeStatus(ctx context.Context, id uint64, sc model.StatusChange) (*model.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, false, domain.ErrBookingNotFound
	}
	if !sc.Matches(b) {
		return b.Clone(), false, nil
	}
	sc.Apply(b)
	b.UpdatedAt = time.Now().UTC()
	return b.Clone(), true, nil
}

func (s *MemoryBookings) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.PaymentRef = &ref
	b.UpdatedAt = time.Now().UTC()
	return nil
}
