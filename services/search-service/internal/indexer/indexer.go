// Package indexer projects post events into the search index.
package indexer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/domain"
	"github.com/baechuer/content-platform/internal/metrics"
)

// BindingKey routes every post event to one queue so events about the same
// post are applied in publish order.
const BindingKey = "post.*"

// Index is the search projection. Upsert reports false when the post was
// already removed; Remove must make that permanent for the id.
type Index interface {
	Upsert(ctx context.Context, doc domain.SearchDocument) (bool, error)
	Remove(ctx context.Context, postID string) (bool, error)
}

type Indexer struct {
	index Index
	inv   *cache.Invalidator
}

func New(index Index, store cache.Store) *Indexer {
	return &Indexer{
		index: index,
		inv:   cache.NewInvalidator(store, cache.NSSearch, "", nil),
	}
}

// Handle dispatches a delivery by routing key. Unknown keys are acked and
// ignored.
func (ix *Indexer) Handle(ctx context.Context, env event.Envelope) error {
	switch env.RoutingKey {
	case event.RoutingPostCreated:
		return event.Typed(ix.HandlePostCreated)(ctx, env)
	case event.RoutingPostDeleted:
		return event.Typed(ix.HandlePostDeleted)(ctx, env)
	default:
		zerolog.Ctx(ctx).Debug().Str("routing_key", env.RoutingKey).Msg("ignoring event")
		return nil
	}
}

func (ix *Indexer) HandlePostCreated(ctx context.Context, p event.PostCreatedPayload) error {
	applied, err := ix.index.Upsert(ctx, domain.SearchDocument{
		PostID:    p.PostID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC(),
	})
	metrics.RecordSearchIndex("upsert", err)
	if err != nil {
		return err
	}
	if !applied {
		zerolog.Ctx(ctx).Info().Str("post_id", p.PostID).Msg("post already removed, create ignored")
		return nil
	}

	zerolog.Ctx(ctx).Info().Str("post_id", p.PostID).Msg("post indexed")
	ix.invalidate(ctx)
	return nil
}

func (ix *Indexer) HandlePostDeleted(ctx context.Context, p event.PostDeletedPayload) error {
	existed, err := ix.index.Remove(ctx, p.PostID)
	metrics.RecordSearchIndex("remove", err)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("post_id", p.PostID).Bool("existed", existed).Msg("post removed from index")
	ix.invalidate(ctx)
	return nil
}

func (ix *Indexer) invalidate(ctx context.Context) {
	if _, err := ix.inv.Invalidate(ctx, ""); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("search cache invalidate failed")
	}
}
