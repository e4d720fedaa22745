package post

import (
	"context"
	"time"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/rs/zerolog"
)

type Service struct {
	repo  PostRepo
	pub   EventPublisher
	cache cache.Store
	inv   *cache.Invalidator
	clock Clock

	ttlPost time.Duration
	ttlList time.Duration
}

func New(
	repo PostRepo,
	clock Clock,
	pub EventPublisher,
	store cache.Store,
	ttlPost, ttlList time.Duration,
) *Service {
	if ttlPost == 0 {
		ttlPost = time.Hour
	}
	if ttlList == 0 {
		ttlList = 5 * time.Minute
	}
	if pub == nil {
		pub = NoopPublisher{}
	}

	return &Service{
		repo:    repo,
		pub:     pub,
		cache:   store,
		inv:     cache.NewInvalidator(store, cache.NSPostList, cache.NSPost, cache.PostKey),
		clock:   clock,
		ttlPost: ttlPost,
		ttlList: ttlList,
	}
}

// afterCommit publishes the event and invalidates caches. Neither step can
// fail the request: the write is already durable. removed marks a deletion,
// whose own post:<id> entry must go as well.
func (s *Service) afterCommit(ctx context.Context, postID, routingKey string, payload any, removed bool) {
	lg := zerolog.Ctx(ctx).With().Str("post_id", postID).Str("routing_key", routingKey).Logger()

	if !s.pub.Publish(ctx, routingKey, payload) {
		lg.Warn().Msg("domain event dropped; derived state will lag until the next mutation")
	}

	invalidate := s.inv.Invalidate
	if removed {
		invalidate = s.inv.InvalidateRemoved
	}
	if strategy, err := invalidate(ctx, postID); err != nil {
		lg.Warn().Err(err).Msg("cache invalidate failed")
	} else if strategy != "" {
		lg.Debug().Str("strategy", strategy).Msg("cache invalidated")
	}
}
