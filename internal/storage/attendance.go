package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

// LastAttendance returns the most recent attendance timestamp for the user,
// or nil when none was ever logged.
func (s *PostgresStore) LastAttendance(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(logged_at) FROM attendance_log WHERE user_id = $1`, userID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last attendance: %w", err)
	}
	return last, nil
}

// RecordAttendance writes the log row and bumps the user's counters in one
// transaction.
func (s *PostgresStore) RecordAttendance(ctx context.Context, entry *models.AttendanceEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attendance: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO attendance_log (id, user_id, method, distance, logged_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.Method, entry.Distance, entry.LoggedAt); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_attendance = total_attendance + 1, last_attendance_at = $2 WHERE id = $1`,
		entry.UserID, entry.LoggedAt); err != nil {
		return fmt.Errorf("update attendance counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attendance: %w", err)
	}
	return nil
}
