package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
)

// BookingRepo is the MySQL BookingStore.  Seat codes live in
// booking_seats so the booked-seat snapshot survives edits to the movie.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = "id, user_id, movie_id, showtime, payment_status, approval_status, payment_ref, created_at, updated_at"

func scanBooking(sc interface{ Scan(...any) error }) (*model.Booking, error) {
	var (
		b   model.Booking
		ref sql.NullString
	)
	if err := sc.Scan(&b.ID, &b.UserID, &b.MovieID, &b.Showtime, &b.PaymentStatus, &b.ApprovalStatus,
		&ref, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if ref.Valid {
		r := ref.String
		b.PaymentRef = &r
	}
	b.Seats = []string{}
	return &b, nil
}

// CreateBooking inserts the booking and its seats in one transaction and
// fills in the generated ID and timestamps.
func (r *BookingRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	if len(b.Seats) == 0 {
		return domain.Validation("at least one seat is required")
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentPending
	}
	if b.ApprovalStatus == "" {
		b.ApprovalStatus = model.ApprovalPending
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO bookings (user_id, movie_id, showtime, payment_status, approval_status) VALUES (?,?,?,?,?)",
		b.UserID, b.MovieID, b.Showtime, b.PaymentStatus, b.ApprovalStatus)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	query := "INSERT INTO booking_seats (booking_id, seat_code, position) VALUES "
	args := make([]any, 0, len(b.Seats)*3)
	for i, s := range b.Seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, id, s, i)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	// Query back the row to pick up timestamps set by the server.
	if err := tx.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM bookings WHERE id = ?", id).
		Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	b.ID = uint64(id)
	return nil
}

func (r *BookingRepo) loadSeats(ctx context.Context, bookings []*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Booking, len(bookings))
	args := make([]any, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		args = append(args, b.ID)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT booking_id, seat_code FROM booking_seats WHERE booking_id IN ("+placeholders(len(bookings))+") ORDER BY booking_id, position",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   uint64
			seat string
		)
		if err := rows.Scan(&id, &seat); err != nil {
			return err
		}
		if b := byID[id]; b != nil {
			b.Seats = append(b.Seats, seat)
		}
	}
	return rows.Err()
}

func (r *BookingRepo) getOne(ctx context.Context, where string, args ...any) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadSeats(ctx, []*model.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BookingRepo) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetBookingForUser restricts the lookup to the owner; a booking owned
// by someone else is reported as not found.
func (r *BookingRepo) GetBookingForUser(ctx context.Context, id, userID uint64) (*model.Booking, error) {
	return r.getOne(ctx, "id = ? AND user_id = ?", id, userID)
}

func (r *BookingRepo) list(ctx context.Context, where string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bookings = append(bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadSeats(ctx, bookings); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, *b)
	}
	return out, nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx, "user_id = ? ORDER BY id", userID)
}

func (r *BookingRepo) ListPendingApproval(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, "payment_status = ? AND approval_status = ? ORDER BY id",
		model.PaymentPaid, model.ApprovalPending)
}

func (r *BookingRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, "payment_status = ? AND created_at < ? ORDER BY id LIMIT ?",
		model.PaymentPending, createdBefore.UTC(), limit)
}

// ChangeStatus issues a single conditional UPDATE so that two racing
// transitions on the same booking cannot both succeed.
func (r *BookingRepo) ChangeStatus(ctx context.Context, id uint64, sc model.StatusChange) (*model.Booking, bool, error) {
	query := "UPDATE bookings SET updated_at = CURRENT_TIMESTAMP"
	var args []any
	if sc.SetPayment != "" {
		query += ", payment_status = ?"
		args = append(args, sc.SetPayment)
	}
	if sc.SetApproval != "" {
		query += ", approval_status = ?"
		args = append(args, sc.SetApproval)
	}
	query += " WHERE id = ? AND payment_status = ?"
	args = append(args, id, sc.RequirePayment)
	if sc.RequireApproval != "" {
		query += " AND approval_status = ?"
		args = append(args, sc.RequireApproval)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	b, err := r.GetBooking(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return b, n > 0, nil
}

func (r *BookingRepo) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE bookings SET payment_ref = ? WHERE id = ?", ref, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Zero rows also means the value was unchanged.
		if _, err := r.GetBooking(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
