package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/baechuer/content-platform/internal/cache"
	"github.com/baechuer/content-platform/internal/domain"
	"github.com/baechuer/content-platform/internal/transport/http/response"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
	maxQueryLen  = 200
)

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchDocument, error)
}

type SearchResult struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []domain.SearchDocument `json:"results"`
}

type SearchHandler struct {
	index Searcher
	store cache.Store
	ttl   time.Duration
}

func NewSearchHandler(index Searcher, store cache.Store, ttl time.Duration) *SearchHandler {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &SearchHandler{index: index, store: store, ttl: ttl}
}

// Posts serves GET /api/search/posts?q=&limit=.
func (h *SearchHandler) Posts(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" || len(q) > maxQueryLen {
		response.Err(w, r, domain.ErrValidation("q is required and must be <= 200 chars"))
		return
	}
	limit := DefaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, MaxLimit)
	}

	res, err := cache.ReadThrough(r.Context(), h.store, cache.NSSearch, cache.SearchKey(q, limit), h.ttl,
		func(ctx context.Context) (SearchResult, error) {
			docs, err := h.index.Search(ctx, q, limit)
			if err != nil {
				return SearchResult{}, err
			}
			return SearchResult{Query: q, Count: len(docs), Results: docs}, nil
		})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, res)
}
