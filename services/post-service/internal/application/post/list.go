package post

import (
	"context"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ListQuery struct {
	Page  int
	Limit int
}

func (q *ListQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
}

// List returns one page of posts, newest first. Pages are cached under
// posts:<page>:<limit> and swept on every write.
func (s *Service) List(ctx context.Context, q ListQuery) (*domain.PostPage, error) {
	q.Normalize()

	return cache.ReadThrough(ctx, s.cache, cache.NSPostList, cache.PostListKey(q.Page, q.Limit), s.ttlList, func(ctx context.Context) (*domain.PostPage, error) {
		posts, total, err := s.repo.List(ctx, (q.Page-1)*q.Limit, q.Limit)
		if err != nil {
			return nil, err
		}
		if posts == nil {
			posts = []*domain.Post{}
		}
		return &domain.PostPage{
			Posts:       posts,
			CurrentPage: q.Page,
			TotalPages:  (total + q.Limit - 1) / q.Limit,
			TotalPosts:  total,
		}, nil
	})
}
