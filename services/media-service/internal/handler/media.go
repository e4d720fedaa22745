package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/domain"
	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
	"github.com/baechuer/content-platform/internal/transport/http/response"
)

// MediaReader loads metadata from the authoritative store.
type MediaReader interface {
	GetByID(ctx context.Context, id string) (*domain.Media, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Media, error)
}

// MediaList is the body of the per-user listing.
type MediaList struct {
	Media []*domain.Media `json:"media"`
	Count int             `json:"count"`
}

// URLBuilder resolves a blob key to a URL clients can fetch.
type URLBuilder interface {
	PublicURL(objectKey string) string
}

// MediaHandler serves media metadata through the read-through cache.
type MediaHandler struct {
	repo    MediaReader
	urls    URLBuilder
	store   cache.Store
	ttl     time.Duration
	ttlList time.Duration
}

func NewMediaHandler(repo MediaReader, urls URLBuilder, store cache.Store, ttl, ttlList time.Duration) *MediaHandler {
	if ttl == 0 {
		ttl = time.Hour
	}
	if ttlList == 0 {
		ttlList = 5 * time.Minute
	}
	return &MediaHandler{repo: repo, urls: urls, store: store, ttl: ttl, ttlList: ttlList}
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "media_id")

	m, err := cache.ReadThrough(r.Context(), h.store, cache.NSMedia, cache.MediaKey(id), h.ttl,
		func(ctx context.Context) (*domain.Media, error) {
			m, err := h.repo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if m == nil {
				return nil, domain.ErrNotFound("media not found")
			}
			m.URL = h.urls.PublicURL(m.ObjectKey)
			return m, nil
		})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, m)
}

// Mine lists the calling user's media. The route requires an identity.
func (h *MediaHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := appCtx.GetActor(r.Context())
	if !ok {
		response.Fail(w, http.StatusUnauthorized, "unauthorized", "missing identity", nil, response.RequestIDFromRequest(r))
		return
	}

	list, err := cache.ReadThrough(r.Context(), h.store, cache.NSMediaList, cache.MediaListKey(actor.UserID), h.ttlList,
		func(ctx context.Context) (MediaList, error) {
			items, err := h.repo.ListByUser(ctx, actor.UserID)
			if err != nil {
				return MediaList{}, err
			}
			for _, m := range items {
				m.URL = h.urls.PublicURL(m.ObjectKey)
			}
			return MediaList{Media: items, Count: len(items)}, nil
		})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, list)
}
