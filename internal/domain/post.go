package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxContentLen = 5000

// Post is the authoritative record owned by post-service.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewPost(userID, content string, mediaIDs []string, now time.Time) (*Post, error) {
	userID = strings.TrimSpace(userID)
	content = strings.TrimSpace(content)

	if userID == "" {
		return nil, ErrValidation("user_id is required")
	}
	if content == "" || len(content) > maxContentLen {
		return nil, ErrValidation("content is required and must be <= 5000 chars")
	}

	ids := make([]string, 0, len(mediaIDs))
	seen := make(map[string]struct{}, len(mediaIDs))
	for _, id := range mediaIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return &Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		MediaIDs:  ids,
		CreatedAt: now.UTC(),
	}, nil
}

// CanDelete reports whether the actor may delete the post: owner or admin.
func (p *Post) CanDelete(actorID string, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	return strings.TrimSpace(actorID) != "" && actorID == p.UserID
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts       []*Post `json:"posts"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	TotalPosts  int     `json:"totalPosts"`
}
