package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"support_chat/internal/domain"
)

var ErrNotFound = errors.New("presence: user not found")

// Repository stores users/{userId} presence fields and the per-day
// attendance list.
type Repository interface {
	SetStatus(ctx context.Context, userID, status string, lastSeen int64) error
	// CheckIn records the day's first check-in. Later calls for the same
	// day are no-ops.
	CheckIn(ctx context.Context, userID, date, at string) error
	// CheckOut sets the day's check-out only if a check-in exists and no
	// check-out was recorded yet. It reports whether the write applied.
	CheckOut(ctx context.Context, userID, date, at string) (bool, error)
	Get(ctx context.Context, userID string) (*domain.UserPresence, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SetStatus(ctx context.Context, userID, status string, lastSeen int64) error {
	query := `
		INSERT INTO user_presence (user_id, status, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET status = $2, last_seen = $3
	`
	_, err := r.db.ExecContext(ctx, query, userID, status, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CheckIn(ctx context.Context, userID, date, at string) error {
	query := `
		INSERT INTO attendance (user_id, date, check_in)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, date) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, date, at)
	if err != nil {
		return fmt.Errorf("failed to check in: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CheckOut(ctx context.Context, userID, date, at string) (bool, error) {
	query := `
		UPDATE attendance SET check_out = $3
		WHERE user_id = $1 AND date = $2 AND check_out = ''
	`
	res, err := r.db.ExecContext(ctx, query, userID, date, at)
	if err != nil {
		return false, fmt.Errorf("failed to check out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check out: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.UserPresence, error) {
	p := &domain.UserPresence{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT status, last_seen FROM user_presence WHERE user_id = $1`, userID,
	).Scan(&p.Status, &p.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT date, check_in, check_out FROM attendance WHERE user_id = $1 ORDER BY date`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.AttendanceRecord
		if err := rows.Scan(&rec.Date, &rec.In, &rec.Out); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		p.Attendance = append(p.Attendance, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return p, nil
}
