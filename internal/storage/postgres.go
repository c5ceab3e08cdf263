package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool

	// Cached "does the database have the native vector type" probe result.
	// Written idempotently; concurrent writers race benignly (see vectorCap).
	vectorCap vectorCap
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

type UpsertUserParams struct {
	DisplayName      string
	Username         string
	Email            *string
	Phone            *string
	DateOfBirth      *string
	EmergencyContact json.RawMessage
	PreferredLang    *string
	Verified         bool
}

// UpsertUser creates the user keyed on the unique username, or updates the
// display fields when the handle already exists (last write wins). Runs in
// its own implicit transaction.
func (s *PostgresStore) UpsertUser(ctx context.Context, p UpsertUserParams) (*models.User, error) {
	u := &models.User{
		DisplayName:      p.DisplayName,
		Username:         p.Username,
		Email:            p.Email,
		Phone:            p.Phone,
		DateOfBirth:      p.DateOfBirth,
		EmergencyContact: p.EmergencyContact,
		PreferredLang:    p.PreferredLang,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, display_name, username, email, phone, date_of_birth, emergency_contact, preferred_language, verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (username) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   email = EXCLUDED.email,
		   phone = EXCLUDED.phone,
		   date_of_birth = EXCLUDED.date_of_birth,
		   emergency_contact = EXCLUDED.emergency_contact,
		   preferred_language = EXCLUDED.preferred_language
		 RETURNING id, verified, total_attendance, created_at`,
		uuid.New(), p.DisplayName, p.Username, p.Email, p.Phone, p.DateOfBirth, p.EmergencyContact, p.PreferredLang, p.Verified,
	).Scan(&u.ID, &u.Verified, &u.TotalAttendance, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, username, email, phone, date_of_birth, emergency_contact, preferred_language, verified, total_attendance, last_attendance_at, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Username, &u.Email, &u.Phone, &u.DateOfBirth,
		&u.EmergencyContact, &u.PreferredLang, &u.Verified, &u.TotalAttendance, &u.LastAttendanceAt, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

type UpdateUserParams struct {
	DisplayName      *string
	Email            *string
	Phone            *string
	DateOfBirth      *string
	EmergencyContact json.RawMessage
	PreferredLang    *string
}

// UpdateUser applies the non-nil fields. Returns false when the user does
// not exist.
func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, p UpdateUserParams) (bool, error) {
	set := ""
	args := []interface{}{}
	argIdx := 1

	add := func(col string, v interface{}) {
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", col, argIdx)
		args = append(args, v)
		argIdx++
	}

	if p.DisplayName != nil {
		add("display_name", *p.DisplayName)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.DateOfBirth != nil {
		add("date_of_birth", *p.DateOfBirth)
	}
	if p.EmergencyContact != nil {
		add("emergency_contact", p.EmergencyContact)
	}
	if p.PreferredLang != nil {
		add("preferred_language", *p.PreferredLang)
	}
	if set == "" {
		return false, fmt.Errorf("no fields to update")
	}

	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", set, argIdx), args...)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUser removes the user with dependent embedding and image rows in one
// transaction, returning the storage keys of the removed images so the
// caller can request best-effort blob cleanup.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT storage_key FROM user_images WHERE user_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list image keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan image key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()

	if _, err := tx.Exec(ctx, `DELETE FROM attendance_log WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete attendance log: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete embeddings: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_images WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete user images: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete user: %w", err)
	}
	return keys, nil
}
