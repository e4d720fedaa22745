package post

import (
	"context"

	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/domain"
)

type CreateCmd struct {
	UserID   string
	Content  string
	MediaIDs []string
}

// Create stores the post, then emits post.created. The event is published
// only after the insert succeeded.
func (s *Service) Create(ctx context.Context, cmd CreateCmd) (*domain.Post, error) {
	p, err := domain.NewPost(cmd.UserID, cmd.Content, cmd.MediaIDs, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, p.ID, event.RoutingPostCreated, event.PostCreatedPayload{
		PostID:    p.ID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	}, false)
	return p, nil
}
