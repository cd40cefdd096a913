package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/workstreamd/workstream/internal/store"
	"github.com/workstreamd/workstream/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("workstream_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newTestRequest returns a request with every optional field populated.
func newTestRequest() *models.Request {
	return &models.Request{
		Scope:        "data17",
		Name:         "data17.runs.period-a",
		Requester:    "panda",
		RequestType:  models.RequestTypeEventStream,
		TransformTag: "r9364",
		Status:       models.RequestStatusNew,
		Locking:      models.RequestLockingIdle,
		Priority:     42,
		Lifetime:     30,
		RequestMetadata: models.Metadata{
			"src_repo": "https://example.org/runs",
		},
		ProcessingMetadata: models.Metadata{
			"attempt": float64(1),
		},
	}
}

// --- Request CRUD ---

func TestRequest_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	req := newTestRequest()
	id, err := s.CreateRequest(ctx, req)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.RequestID)
	assert.Equal(t, req.Scope, got.Scope)
	assert.Equal(t, req.Name, got.Name)
	assert.Equal(t, req.Requester, got.Requester)
	assert.Equal(t, models.RequestTypeEventStream, got.RequestType)
	assert.Equal(t, req.TransformTag, got.TransformTag)
	assert.Equal(t, models.RequestStatusNew, got.Status)
	assert.Equal(t, models.RequestLockingIdle, got.Locking)
	assert.Equal(t, 42, got.Priority)
	assert.Equal(t, req.RequestMetadata, got.RequestMetadata)
	assert.Equal(t, req.ProcessingMetadata, got.ProcessingMetadata)
	assert.Nil(t, got.WorkloadID)
	require.NotNil(t, got.ExpiredAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRequest_WorkloadIDFromMetadata(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	req := newTestRequest()
	req.RequestMetadata = models.Metadata{"workload_id": float64(123456)}

	id, err := s.CreateRequest(ctx, req)
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.WorkloadID)
	assert.Equal(t, int64(123456), *got.WorkloadID)

	byWorkload, err := s.GetRequestByWorkloadID(ctx, 123456)
	require.NoError(t, err)
	assert.Equal(t, id, byWorkload.RequestID)
}

func TestRequest_MetadataAbsencePreserved(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	req := newTestRequest()
	req.RequestMetadata = nil
	req.ProcessingMetadata = nil

	id, err := s.CreateRequest(ctx, req)
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.RequestMetadata)
	assert.Nil(t, got.ProcessingMetadata)
}

func TestRequest_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	status := models.RequestStatusFailed
	meta := models.Metadata{"reason": "workload rejected"}
	err = s.UpdateRequest(ctx, id, store.RequestUpdate{
		Status:             &status,
		ProcessingMetadata: &meta,
	})
	require.NoError(t, err)

	got, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	assert.Equal(t, meta, got.ProcessingMetadata)
	// untouched fields survive
	assert.Equal(t, 42, got.Priority)
}

func TestRequest_ExtendAndCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	before, err := s.GetRequest(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.ExtendRequest(ctx, id, 60))

	after, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 60, after.Lifetime)
	assert.True(t, after.ExpiredAt.After(*before.ExpiredAt))

	require.NoError(t, s.CancelRequest(ctx, id))
	cancelled, err := s.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
}

func TestRequest_DeleteAndNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	id, err := s.CreateRequest(ctx, newTestRequest())
	require.NoError(t, err)

	require.NoError(t, s.DeleteRequest(ctx, id))

	_, err = s.GetRequest(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.DeleteRequest(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetRequest(ctx, 999999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
