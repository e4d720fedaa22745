package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/baechuer/content-platform/internal/domain"
	"github.com/baechuer/content-platform/services/post-service/internal/application/post"
)

type Repo struct {
	db *sql.DB
}

func New(db *sql.DB) *Repo { return &Repo{db: db} }

var _ post.PostRepo = (*Repo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var p domain.Post
	var mediaIDs pq.StringArray
	if err := row.Scan(&p.ID, &p.UserID, &p.Content, &mediaIDs, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.MediaIDs = []string(mediaIDs)
	if p.MediaIDs == nil {
		p.MediaIDs = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (r *Repo) Create(ctx context.Context, p *domain.Post) error {
	mediaIDs := p.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	_, err := r.db.ExecContext(ctx, insertPostSQL,
		p.ID, p.UserID, p.Content, pq.Array(mediaIDs), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, getPostSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("post not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]*domain.Post, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, countPostsSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	if total == 0 || offset >= total {
		return []*domain.Post{}, total, nil
	}

	rows, err := r.db.QueryContext(ctx, listPostsSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*domain.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
