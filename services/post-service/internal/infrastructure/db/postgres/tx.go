package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/baechuer/content-platform/internal/domain"
	"github.com/baechuer/content-platform/services/post-service/internal/application/post"
)

func (r *Repo) WithTx(ctx context.Context, fn func(tr post.TxPostRepo) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	})
	if err != nil {
		return err
	}

	tr := &txRepo{tx: tx}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tr); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepo struct {
	tx *sql.Tx
}

func (t *txRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Post, error) {
	p, err := scanPost(t.tx.QueryRowContext(ctx, getPostForUpdateSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("post not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete is idempotent: deleting a row that is already gone is not an error.
func (t *txRepo) Delete(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, deletePostSQL, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
