package model

import "time"

// PaymentStatus is the payment side of a booking's lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentPaid      PaymentStatus = "Paid"
	PaymentCancelled PaymentStatus = "Cancelled"
)

// ApprovalStatus is the admin gate that follows a successful payment.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

// Booking records a user's seat reservation for one showtime of a movie.
// Seats is a snapshot of what was reserved at creation time and is
// never rewritten, even when the movie is edited or deleted.
//
// Fields:
//
//	ID             – primary key identifier (bookings.id).
//	UserID         – owner of the booking.
//	MovieID        – referenced movie; may dangle after a movie is deleted.
//	Showtime       – showtime label the seats belong to.
//	Seats          – reserved seat codes.
//	PaymentStatus  – Pending, Paid or Cancelled.
//	ApprovalStatus – Pending, Approved or Rejected.
//	PaymentRef     – checkout session reference, if a checkout was started.
type Booking struct {
	ID             uint64         `json:"booking_id"`
	UserID         uint64         `json:"user_id"`
	MovieID        uint64         `json:"movie_id"`
	Showtime       string         `json:"showtime"`
	Seats          []string       `json:"seats"`
	PaymentStatus  PaymentStatus  `json:"payment_status"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	PaymentRef     *string        `json:"payment_ref,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StatusLabel is the short status shown to the booking's owner.
func (b *Booking) StatusLabel() string {
	switch b.PaymentStatus {
	case PaymentPending:
		return "Pending"
	case PaymentPaid:
		switch b.ApprovalStatus {
		case ApprovalApproved:
			return "Confirmed"
		case ApprovalRejected:
			return "Rejected"
		}
		return "Awaiting approval"
	}
	return string(b.PaymentStatus)
}

// Clone returns a deep copy of the booking.
func (b *Booking) Clone() *Booking {
	out := *b
	out.Seats = append([]string(nil), b.Seats...)
	if b.PaymentRef != nil {
		r := *b.PaymentRef
		out.PaymentRef = &r
	}
	return &out
}

// StatusChange is a conditional status update.  The change applies only
// when the booking's current payment status equals RequirePayment and,
// if RequireApproval is set, its approval status equals RequireApproval.
// Empty Set* fields leave the corresponding status untouched.
type StatusChange struct {
	RequirePayment  PaymentStatus
	RequireApproval ApprovalStatus
	SetPayment      PaymentStatus
	SetApproval     ApprovalStatus
}

// Matches reports whether the change's preconditions hold for b.
func (sc StatusChange) Matches(b *Booking) bool {
	if b.PaymentStatus != sc.RequirePayment {
		return false
	}
	if sc.RequireApproval != "" && b.ApprovalStatus != sc.RequireApproval {
		return false
	}
	return true
}

// Apply writes the change's target statuses onto b.
func (sc StatusChange) Apply(b *Booking) {
	if sc.SetPayment != "" {
		b.PaymentStatus = sc.SetPayment
	}
	if sc.SetApproval != "" {
		b.ApprovalStatus = sc.SetApproval
	}
}

// Reached reports whether b already sits in the change's target state,
// which makes a repeated transition a no-op.  A payment change only
// looks at the payment status so that marking an approved booking as
// paid again stays harmless.
func (sc StatusChange) Reached(b *Booking) bool {
	if sc.SetPayment != "" {
		return b.PaymentStatus == sc.SetPayment
	}
	return sc.SetApproval != "" && b.ApprovalStatus == sc.SetApproval
}

// Lifecycle transitions.
var (
	MarkPaid = StatusChange{
		RequirePayment: PaymentPending,
		SetPayment:     PaymentPaid,
		SetApproval:    ApprovalPending,
	}
	CancelPayment = StatusChange{
		RequirePayment: PaymentPending,
		SetPayment:     PaymentCancelled,
	}
	Approve = StatusChange{
		RequirePayment:  PaymentPaid,
		RequireApproval: ApprovalPending,
		SetApproval:     ApprovalApproved,
	}
	Reject = StatusChange{
		RequirePayment:  PaymentPaid,
		RequireApproval: ApprovalPending,
		SetApproval:     ApprovalRejected,
	}
)
