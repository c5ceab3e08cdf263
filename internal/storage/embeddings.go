package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

var (
	// ErrEmbeddingPersist means both storage-format attempts failed.
	ErrEmbeddingPersist = errors.New("embedding insert failed for all storage formats")
	// ErrVectorUnsupported means a nearest-neighbor query was requested but
	// the database has no native vector type. There is deliberately no slow
	// linear-scan fallback; the capability has to be provisioned explicitly.
	ErrVectorUnsupported = errors.New("native vector type not available")
)

// vectorCap caches the pg_type probe. Multiple workers may race to compute
// it; every writer stores the same value, so no lock is needed.
type vectorCap struct {
	state atomic.Int32 // 0 unknown, 1 supported, 2 array-only
}

// HasVectorType reports whether the database has the pgvector `vector` type
// installed. Probed once per process and cached.
func (s *PostgresStore) HasVectorType(ctx context.Context) (bool, error) {
	switch s.vectorCap.state.Load() {
	case 1:
		return true, nil
	case 2:
		return false, nil
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_type WHERE typname = $1)`, "vector",
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe vector type: %w", err)
	}

	if exists {
		s.vectorCap.state.Store(1)
	} else {
		s.vectorCap.state.Store(2)
	}
	return exists, nil
}

// InvalidateVectorCap drops the cached probe result so the next call
// re-probes. Used after provisioning the extension at runtime and by tests.
func (s *PostgresStore) InvalidateVectorCap() {
	s.vectorCap.state.Store(0)
}

// SaveEmbedding persists one encoding for a user. The write runs an ordered
// fallback over physical representations, each attempt a fresh statement:
//
//  1. plain float8[] insert, valid regardless of installed extensions;
//  2. if that fails and the vector type is available, a pgvector insert.
//
// Both failing yields ErrEmbeddingPersist; transaction disposition is the
// caller's concern.
func (s *PostgresStore) SaveEmbedding(ctx context.Context, userID uuid.UUID, vec []float32, source string) (uuid.UUID, error) {
	id := uuid.New()

	arr := make([]float64, len(vec))
	for i, v := range vec {
		arr[i] = float64(v)
	}

	_, arrayErr := s.pool.Exec(ctx,
		`INSERT INTO embeddings (id, user_id, embedding, source) VALUES ($1, $2, $3, $4)`,
		id, userID, arr, source)
	if arrayErr == nil {
		observability.EmbeddingWrites.WithLabelValues("array").Inc()
		return id, nil
	}
	slog.Debug("embedding float8[] insert failed, trying vector form", "user_id", userID, "error", arrayErr)

	hasVector, probeErr := s.HasVectorType(ctx)
	if probeErr != nil {
		// A dead catalog query is a different failure than a rejected
		// insert; keep both visible.
		return uuid.Nil, fmt.Errorf("%w: array: %v; probe: %v", ErrEmbeddingPersist, arrayErr, probeErr)
	}
	if hasVector {
		_, vecErr := s.pool.Exec(ctx,
			`INSERT INTO embeddings (id, user_id, embedding, source) VALUES ($1, $2, $3, $4)`,
			id, userID, pgvector.NewVector(vec), source)
		if vecErr == nil {
			observability.EmbeddingWrites.WithLabelValues("vector").Inc()
			return id, nil
		}
		return uuid.Nil, fmt.Errorf("%w: array: %v; vector: %v", ErrEmbeddingPersist, arrayErr, vecErr)
	}

	return uuid.Nil, fmt.Errorf("%w: array: %v", ErrEmbeddingPersist, arrayErr)
}

// Match is one nearest-neighbor candidate. Distance is raw Euclidean;
// acceptance thresholds are applied by the caller, never here.
type Match struct {
	EmbeddingID uuid.UUID `json:"embedding_id"`
	UserID      uuid.UUID `json:"user_id"`
	Distance    float64   `json:"distance"`
}

// Nearest returns up to limit stored encodings ordered ascending by
// Euclidean distance from the query vector. Fails with ErrVectorUnsupported
// when the database lacks the native vector type.
func (s *PostgresStore) Nearest(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 1
	}

	hasVector, err := s.HasVectorType(ctx)
	if err != nil {
		return nil, err
	}
	if !hasVector {
		return nil, ErrVectorUnsupported
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, embedding <-> $1 AS dist
		 FROM embeddings
		 ORDER BY embedding <-> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("nearest embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.EmbeddingID, &m.UserID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// ListEmbeddingMeta returns embedding rows without their vector payloads.
func (s *PostgresStore) ListEmbeddingMeta(ctx context.Context, userID uuid.UUID) ([]models.Embedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, source, created_at FROM embeddings WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var metas []models.Embedding
	for rows.Next() {
		var e models.Embedding
		if err := rows.Scan(&e.ID, &e.UserID, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		metas = append(metas, e)
	}
	return metas, nil
}

func (s *PostgresStore) CountEmbeddings(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}
