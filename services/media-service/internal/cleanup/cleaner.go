// Package cleanup removes the media a deleted post referenced.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/domain"
	"github.com/baechuer/content-platform/internal/metrics"
)

type MediaRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Media, error)
	DeleteIfExists(ctx context.Context, id string) (bool, error)
}

type BlobStore interface {
	DeleteObject(ctx context.Context, objectKey string) error
}

const (
	outcomeDeleted = "deleted"
	outcomeAbsent  = "absent"
	outcomeError   = "error"
)

// Cleaner handles post.deleted. Every item is processed even when an earlier
// one fails; the joined error sends the message back for retry, and items
// already removed are no-ops on the next attempt.
type Cleaner struct {
	repo  MediaRepository
	blobs BlobStore
	inv   *cache.Invalidator
}

func NewCleaner(repo MediaRepository, blobs BlobStore, store cache.Store) *Cleaner {
	return &Cleaner{
		repo:  repo,
		blobs: blobs,
		inv:   cache.NewInvalidator(store, cache.NSMediaList, cache.NSMedia, cache.MediaKey),
	}
}

func (c *Cleaner) HandlePostDeleted(ctx context.Context, p event.PostDeletedPayload) error {
	lg := zerolog.Ctx(ctx).With().Str("post_id", p.PostID).Logger()

	var errs []error
	for _, id := range p.MediaIDs {
		outcome, err := c.remove(ctx, id)
		metrics.RecordMediaCleanup(outcome)
		if err != nil {
			lg.Error().Err(err).Str("media_id", id).Msg("media cleanup failed")
			errs = append(errs, fmt.Errorf("media %s: %w", id, err))
			continue
		}
		lg.Debug().Str("media_id", id).Str("outcome", outcome).Msg("media cleanup")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	lg.Info().Int("media", len(p.MediaIDs)).Msg("post media cleaned up")
	return nil
}

// remove deletes the blob before the record so a failed blob delete leaves
// the record in place for the retry to find.
func (c *Cleaner) remove(ctx context.Context, id string) (string, error) {
	m, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return outcomeError, err
	}
	if m == nil {
		c.invalidate(ctx, id)
		return outcomeAbsent, nil
	}

	if m.ObjectKey != "" {
		if err := c.blobs.DeleteObject(ctx, m.ObjectKey); err != nil {
			return outcomeError, err
		}
	}

	deleted, err := c.repo.DeleteIfExists(ctx, id)
	if err != nil {
		return outcomeError, err
	}
	c.invalidate(ctx, id)

	if !deleted {
		return outcomeAbsent, nil
	}
	return outcomeDeleted, nil
}

func (c *Cleaner) invalidate(ctx context.Context, id string) {
	if _, err := c.inv.InvalidateRemoved(ctx, id); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("media_id", id).Msg("media cache invalidate failed")
	}
}
