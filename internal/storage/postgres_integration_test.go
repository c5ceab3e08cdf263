//go:build integration

package storage

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/vision"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}
	port, _ := strconv.Atoi(mapped.Port())

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     "testdb",
		User:     "test",
		Password: "test",
		MaxConns: 5,
	}

	if err := Migrate(cfg); err != nil {
		container.Terminate(ctx)
		t.Fatalf("run migrations: %v", err)
	}

	store, err := NewPostgresStore(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}
	return store, cleanup
}

// setupArrayOnlyStore provisions a plain Postgres without the pgvector
// extension. The embedding column is float8[], the out-of-band DDL an
// array-only deployment would run.
func setupArrayOnlyStore(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}
	port, _ := strconv.Atoi(mapped.Port())

	store, err := NewPostgresStore(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     "testdb",
		User:     "test",
		Password: "test",
		MaxConns: 5,
	})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("create store: %v", err)
	}

	ddl := []string{
		`CREATE TABLE users (
			id                 UUID PRIMARY KEY,
			display_name       TEXT NOT NULL,
			username           TEXT NOT NULL UNIQUE,
			email              TEXT,
			phone              TEXT,
			date_of_birth      TEXT,
			emergency_contact  JSONB,
			preferred_language TEXT,
			verified           BOOLEAN NOT NULL DEFAULT FALSE,
			total_attendance   INTEGER NOT NULL DEFAULT 0,
			last_attendance_at TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE embeddings (
			id         UUID PRIMARY KEY,
			user_id    UUID NOT NULL REFERENCES users (id),
			embedding  FLOAT8[],
			source     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range ddl {
		if _, err := store.pool.Exec(ctx, stmt); err != nil {
			store.Close()
			container.Terminate(ctx)
			t.Fatalf("create array-only schema: %v", err)
		}
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}
	return store, cleanup
}

func testEncoding(seed int) []float32 {
	vec := make([]float32, vision.EmbeddingDim)
	for i := range vec {
		vec[i] = float32((i+seed)%97) / 97.0
	}
	return vec
}

func TestVectorCapability(t *testing.T) {
	store, cleanup := setupTestStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	has, err := store.HasVectorType(ctx)
	if err != nil {
		t.Fatalf("HasVectorType: %v", err)
	}
	if !has {
		t.Fatal("pgvector image must report the vector type")
	}

	// Second call answers from the cache; invalidation forces a re-probe.
	store.InvalidateVectorCap()
	has, err = store.HasVectorType(ctx)
	if err != nil || !has {
		t.Fatalf("re-probe after invalidation: has=%v err=%v", has, err)
	}
}

func TestUpsertUserIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	first, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	second, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada Lovelace", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser repeat: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("repeat upsert produced a new id: %s vs %s", first.ID, second.ID)
	}
	if second.DisplayName != "Ada Lovelace" {
		t.Errorf("display name not updated: %q", second.DisplayName)
	}
}

func TestSaveEmbeddingAndNearest(t *testing.T) {
	store, cleanup := setupTestStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	ada, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	bob, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Bob", Username: "bob"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	adaVec := testEncoding(0)
	if _, err := store.SaveEmbedding(ctx, ada.ID, adaVec, models.SourceEnroll); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}
	if _, err := store.SaveEmbedding(ctx, bob.ID, testEncoding(40), models.SourceEnroll); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	matches, err := store.Nearest(ctx, adaVec, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].UserID != ada.ID {
		t.Errorf("nearest user = %s, want %s", matches[0].UserID, ada.ID)
	}
	if math.Abs(matches[0].Distance) > 1e-4 {
		t.Errorf("self-distance = %v, want ~0", matches[0].Distance)
	}
	if matches[1].Distance < matches[0].Distance {
		t.Error("matches not ordered ascending by distance")
	}

	count, err := store.CountEmbeddings(ctx, ada.ID)
	if err != nil || count != 1 {
		t.Errorf("CountEmbeddings = %d err=%v, want 1", count, err)
	}
}

func TestArrayOnlyDeployment(t *testing.T) {
	store, cleanup := setupArrayOnlyStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	has, err := store.HasVectorType(ctx)
	if err != nil {
		t.Fatalf("HasVectorType: %v", err)
	}
	if has {
		t.Fatal("plain postgres must not report the vector type")
	}

	user, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	// Writes succeed through the float8[] path without pgvector.
	if _, err := store.SaveEmbedding(ctx, user.ID, testEncoding(0), models.SourceEnroll); err != nil {
		t.Fatalf("SaveEmbedding on array-only schema: %v", err)
	}
	count, err := store.CountEmbeddings(ctx, user.ID)
	if err != nil || count != 1 {
		t.Errorf("CountEmbeddings = %d err=%v, want 1", count, err)
	}

	// Reads refuse rather than degrade to a linear scan.
	if _, err := store.Nearest(ctx, testEncoding(0), 1); !errors.Is(err, ErrVectorUnsupported) {
		t.Errorf("Nearest err = %v, want ErrVectorUnsupported", err)
	}
}

func TestSaveEmbeddingAllFormatsFail(t *testing.T) {
	store, cleanup := setupArrayOnlyStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	user, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if _, err := store.pool.Exec(ctx, `DROP TABLE embeddings`); err != nil {
		t.Fatalf("drop embeddings: %v", err)
	}

	if _, err := store.SaveEmbedding(ctx, user.ID, testEncoding(0), models.SourceEnroll); !errors.Is(err, ErrEmbeddingPersist) {
		t.Fatalf("SaveEmbedding err = %v, want ErrEmbeddingPersist", err)
	}

	// With the connection gone, the capability probe itself fails; the
	// error has to surface both the insert and the probe failure.
	store.InvalidateVectorCap()
	store.Close()
	_, err = store.SaveEmbedding(ctx, user.ID, testEncoding(0), models.SourceEnroll)
	if !errors.Is(err, ErrEmbeddingPersist) {
		t.Fatalf("SaveEmbedding on closed pool err = %v, want ErrEmbeddingPersist", err)
	}
	if !strings.Contains(err.Error(), "probe:") {
		t.Errorf("err %q does not name the probe failure", err)
	}
}

func TestAttendanceRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	user, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	last, err := store.LastAttendance(ctx, user.ID)
	if err != nil {
		t.Fatalf("LastAttendance: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no prior attendance, got %v", last)
	}

	entry := &models.AttendanceEntry{UserID: user.ID, Method: "face", Distance: 0.31}
	if err := store.RecordAttendance(ctx, entry); err != nil {
		t.Fatalf("RecordAttendance: %v", err)
	}

	last, err = store.LastAttendance(ctx, user.ID)
	if err != nil || last == nil {
		t.Fatalf("LastAttendance after write: last=%v err=%v", last, err)
	}

	reloaded, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if reloaded.TotalAttendance != 1 {
		t.Errorf("total_attendance = %d, want 1", reloaded.TotalAttendance)
	}
	if reloaded.LastAttendanceAt == nil {
		t.Error("last_attendance_at not set")
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	user, err := store.UpsertUser(ctx, UpsertUserParams{DisplayName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	img := &models.UserImage{UserID: user.ID, StorageKey: user.ID.String() + "/a.jpg", MimeType: "image/jpeg"}
	if err := store.InsertUserImage(ctx, img); err != nil {
		t.Fatalf("InsertUserImage: %v", err)
	}
	if _, err := store.SaveEmbedding(ctx, user.ID, testEncoding(0), models.SourceEnroll); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}

	keys, err := store.DeleteUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(keys) != 1 || keys[0] != img.StorageKey {
		t.Errorf("returned keys = %v, want [%s]", keys, img.StorageKey)
	}

	gone, err := store.GetUser(ctx, user.ID)
	if err != nil || gone != nil {
		t.Errorf("user still present after delete: %v err=%v", gone, err)
	}
	count, err := store.CountEmbeddings(ctx, user.ID)
	if err != nil || count != 0 {
		t.Errorf("embeddings remain after delete: %d err=%v", count, err)
	}

	if _, err := store.DeleteUser(ctx, user.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("second delete err = %v, want pgx.ErrNoRows", err)
	}
}
