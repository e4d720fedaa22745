package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/baechuer/content-platform/internal/domain"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MediaRepository handles database operations for media metadata.
type MediaRepository struct {
	db DB
}

func NewMediaRepository(db DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// GetByID returns the record, or nil when it does not exist.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	var m domain.Media
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, object_key, mime_type, created_at
		FROM media WHERE id = $1
	`, id).Scan(&m.ID, &m.UserID, &m.ObjectKey, &m.MimeType, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return &m, nil
}

// ListByUser returns the user's media, newest first.
func (r *MediaRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Media, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, object_key, mime_type, created_at
		FROM media WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	out := []*domain.Media{}
	for rows.Next() {
		var m domain.Media
		if err := rows.Scan(&m.ID, &m.UserID, &m.ObjectKey, &m.MimeType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return out, nil
}

// DeleteIfExists removes the record and reports whether a row was deleted.
// A missing row is not an error.
func (r *MediaRepository) DeleteIfExists(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM media WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete media: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
