package post

import (
	"context"

	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/domain"
	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
)

// Delete removes the post if the actor owns it (or is an admin) and emits
// post.deleted carrying the media ids, so media-service can clean up without
// calling back.
func (s *Service) Delete(ctx context.Context, postID string, actor appCtx.Actor) error {
	var deleted *domain.Post

	err := s.repo.WithTx(ctx, func(r TxPostRepo) error {
		p, err := r.GetByIDForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if !p.CanDelete(actor.UserID, actor.IsAdmin()) {
			return domain.ErrForbidden("not allowed to delete this post")
		}
		if err := r.Delete(ctx, postID); err != nil {
			return err
		}
		deleted = p
		return nil
	})
	if err != nil {
		return err
	}

	mediaIDs := deleted.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	s.afterCommit(ctx, deleted.ID, event.RoutingPostDeleted, event.PostDeletedPayload{
		PostID:   deleted.ID,
		UserID:   deleted.UserID,
		MediaIDs: mediaIDs,
	}, true)
	return nil
}
