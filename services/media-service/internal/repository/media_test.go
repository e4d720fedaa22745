package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/content-platform/internal/domain"
)

func TestMediaRepository_DeleteIfExists(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		t.Skipf("Skipping integration test: database not reachable: %v", err)
	}

	repo := NewMediaRepository(pool)

	id := uuid.NewString()
	userID := "u-" + id
	seedMedia(t, pool, &domain.Media{
		ID:        id,
		UserID:    userID,
		ObjectKey: "posts/" + id + ".jpg",
		MimeType:  "image/jpeg",
		CreatedAt: time.Now().UTC(),
	})

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, userID, got.UserID)

	list, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	deleted, err := repo.DeleteIfExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Second delete is a no-op.
	deleted, err = repo.DeleteIfExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err = repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// seedMedia inserts a record directly. Records are created by the upload
// flow, which this service does not own.
func seedMedia(t *testing.T, pool *pgxpool.Pool, m *domain.Media) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO media (id, user_id, object_key, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.ObjectKey, m.MimeType, m.CreatedAt)
	require.NoError(t, err)
}
