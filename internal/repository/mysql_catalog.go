package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/ledger"
	"github.com/iliyamo/movieflex/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// MovieRepo is the MySQL CatalogStore.  A movie is spread over three
// tables: movies, movie_showtimes (one row per label with its capacity)
// and booked_seats (one row per held seat).  The primary key of
// booked_seats makes a double booking impossible even if two writers
// were to slip past the row lock taken in ReserveSeats.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo returns a MovieRepo bound to db.
func NewMovieRepo(db *sql.DB) *MovieRepo { return &MovieRepo{db: db} }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (r *MovieRepo) CreateMovie(ctx context.Context, in model.MovieInput) (*model.Movie, error) {
	if err := validateMovieInput(in); err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO movies (title, genre, duration, poster) VALUES (?,?,?,?)",
		in.Title, in.Genre, in.Duration, in.Poster)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := upsertShowtimesTx(ctx, tx, uint64(id), in.Showtimes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r.GetMovie(ctx, uint64(id))
}

// upsertShowtimesTx writes one row per label, keeping the capacity of
// labels that already exist and refreshing their display order.
func upsertShowtimesTx(ctx context.Context, tx *sql.Tx, movieID uint64, showtimes []string) error {
	if len(showtimes) == 0 {
		return nil
	}
	query := "INSERT INTO movie_showtimes (movie_id, label, position, capacity) VALUES "
	args := make([]any, 0, len(showtimes)*4)
	for i, st := range showtimes {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, movieID, st, i, model.DefaultCapacity)
	}
	query += " ON DUPLICATE KEY UPDATE position = VALUES(position)"
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpdateMovie rewrites the movie's fields and schedule.  Showtimes that
// disappear take their booked seats with them; bookings that referenced
// those seats are left as they are.
func (r *MovieRepo) UpdateMovie(ctx context.Context, id uint64, in model.MovieInput) (*model.Movie, error) {
	if err := validateMovieInput(in); err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	err = tx.QueryRowContext(ctx, "SELECT id FROM movies WHERE id = ? FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMovieNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE movies SET title = ?, genre = ?, duration = ?, poster = ? WHERE id = ?",
		in.Title, in.Genre, in.Duration, in.Poster, id); err != nil {
		return nil, err
	}

	// booked_seats rows for removed labels go with the cascade.
	args := []any{id}
	for _, st := range in.Showtimes {
		args = append(args, st)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM movie_showtimes WHERE movie_id = ? AND label NOT IN ("+placeholders(len(in.Showtimes))+")",
		args...); err != nil {
		return nil, err
	}
	if err := upsertShowtimesTx(ctx, tx, id, in.Showtimes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r.GetMovie(ctx, id)
}

const movieColumns = "id, title, genre, duration, poster, created_at, updated_at"

func scanMovie(sc interface{ Scan(...any) error }) (*model.Movie, error) {
	var (
		m        model.Movie
		duration sql.NullInt64
		poster   sql.NullString
	)
	if err := sc.Scan(&m.ID, &m.Title, &m.Genre, &duration, &poster, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		m.Duration = &d
	}
	if poster.Valid {
		p := poster.String
		m.Poster = &p
	}
	m.Showtimes = []string{}
	m.Capacity = map[string]int{}
	m.BookedSeats = map[string][]string{}
	return &m, nil
}

// loadSchedules fills showtimes, capacities and booked seats for the
// given movies with two queries regardless of how many movies there are.
func loadSchedules(ctx context.Context, q queryer, movies []*model.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Movie, len(movies))
	args := make([]any, 0, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
		args = append(args, m.ID)
	}
	in := placeholders(len(movies))

	rows, err := q.QueryContext(ctx,
		"SELECT movie_id, label, capacity FROM movie_showtimes WHERE movie_id IN ("+in+") ORDER BY movie_id, position",
		args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			movieID  uint64
			label    string
			capacity int
		)
		if err := rows.Scan(&movieID, &label, &capacity); err != nil {
			rows.Close()
			return err
		}
		if m := byID[movieID]; m != nil {
			m.Showtimes = append(m.Showtimes, label)
			m.Capacity[label] = capacity
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		"SELECT movie_id, showtime, seat_code FROM booked_seats WHERE movie_id IN ("+in+") ORDER BY movie_id, showtime, created_at, seat_code",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			movieID  uint64
			showtime string
			seat     string
		)
		if err := rows.Scan(&movieID, &showtime, &seat); err != nil {
			return err
		}
		if m := byID[movieID]; m != nil {
			m.BookedSeats[showtime] = append(m.BookedSeats[showtime], seat)
		}
	}
	return rows.Err()
}

func (r *MovieRepo) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := scanMovie(r.db.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMovieNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadSchedules(ctx, r.db, []*model.Movie{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMovies applies the catalog filter in SQL.  The title match relies
// on the column's case-insensitive collation.
func (r *MovieRepo) ListMovies(ctx context.Context, f model.MovieFilter) ([]model.Movie, error) {
	query := "SELECT " + movieColumns + " FROM movies WHERE 1=1"
	var args []any
	if t := strings.TrimSpace(f.Title); t != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+escapeLike(t)+"%")
	}
	if g := strings.TrimSpace(f.Genre); g != "" && !strings.EqualFold(g, "all") {
		query += " AND genre = ?"
		args = append(args, g)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var movies []*model.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		movies = append(movies, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadSchedules(ctx, r.db, movies); err != nil {
		return nil, err
	}
	out := make([]model.Movie, 0, len(movies))
	for _, m := range movies {
		out = append(out, *m)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func (r *MovieRepo) Genres(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT genre FROM movies WHERE genre <> '' ORDER BY genre")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *MovieRepo) DeleteMovie(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM movies WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrMovieNotFound
	}
	return nil
}

// ReserveSeats locks the showtime row, checks the requested seats
// against the booked set and inserts them, all in one transaction.
// Concurrent reservations for the same showtime serialize on the lock.
func (r *MovieRepo) ReserveSeats(ctx context.Context, movieID uint64, showtime string, seats []string) error {
	if len(seats) == 0 {
		return domain.Validation("at least one seat is required")
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

	var capacity int
	err = tx.QueryRowContext(ctx,
		"SELECT capacity FROM movie_showtimes WHERE movie_id = ? AND label = ? FOR UPDATE",
		movieID, showtime).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		var one int
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM movies WHERE id = ?", movieID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMovieNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrInvalidShowtime
	}
	if err != nil {
		return err
	}

	args := []any{movieID, showtime}
	for _, s := range seats {
		args = append(args, s)
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT seat_code FROM booked_seats WHERE movie_id = ? AND showtime = ? AND seat_code IN ("+placeholders(len(seats))+")",
		args...)
	if err != nil {
		return err
	}
	var held []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return err
		}
		held = append(held, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if overlap := ledger.Overlap(held, seats); len(overlap) > 0 {
		return &domain.SeatConflictError{Showtime: showtime, Seats: overlap}
	}

	query := "INSERT INTO booked_seats (movie_id, showtime, seat_code) VALUES "
	ins := make([]any, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		ins = append(ins, movieID, showtime, s)
	}
	if _, err := tx.ExecContext(ctx, query, ins...); err != nil {
		if isDuplicate(err) {
			return &domain.SeatConflictError{Showtime: showtime, Seats: seats}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ReleaseSeats deletes the given seats from the showtime's booked set
// and reports how many rows were removed.
func (r *MovieRepo) ReleaseSeats(ctx context.Context, movieID uint64, showtime string, seats []string) (int, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	args := []any{movieID, showtime}
	for _, s := range seats {
		args = append(args, s)
	}
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM booked_seats WHERE movie_id = ? AND showtime = ? AND seat_code IN ("+placeholders(len(seats))+")",
		args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		var one int
		err = r.db.QueryRowContext(ctx, "SELECT 1 FROM movies WHERE id = ?", movieID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrMovieNotFound
		}
		if err != nil {
			return 0, err
		}
	}
	return int(n), nil
}
