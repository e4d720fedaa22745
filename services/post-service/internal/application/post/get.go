package post

import (
	"context"
	"strings"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/domain"
)

func (s *Service) Get(ctx context.Context, id string) (*domain.Post, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrValidation("post id is required")
	}
	return cache.ReadThrough(ctx, s.cache, cache.NSPost, cache.PostKey(id), s.ttlPost, func(ctx context.Context) (*domain.Post, error) {
		return s.repo.GetByID(ctx, id)
	})
}
