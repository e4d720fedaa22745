package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/content-platform/internal/domain"
	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
	"github.com/baechuer/content-platform/internal/transport/http/response"
	"github.com/baechuer/content-platform/services/post-service/internal/application/post"
)

type PostService interface {
	Create(ctx context.Context, cmd post.CreateCmd) (*domain.Post, error)
	Delete(ctx context.Context, postID string, actor appCtx.Actor) error
	Get(ctx context.Context, id string) (*domain.Post, error)
	List(ctx context.Context, q post.ListQuery) (*domain.PostPage, error)
}

type PostsHandler struct {
	svc PostService
}

func NewPostsHandler(svc PostService) *PostsHandler {
	return &PostsHandler{svc: svc}
}

type createPostReq struct {
	Content  string   `json:"content"`
	MediaIDs []string `json:"mediaIds"`
}

func (h *PostsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := appCtx.GetActor(r.Context())

	var req createPostReq
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, err)
		return
	}

	p, err := h.svc.Create(r.Context(), post.CreateCmd{
		UserID:   actor.UserID,
		Content:  req.Content,
		MediaIDs: req.MediaIDs,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, p)
}

func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := post.ListQuery{
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", post.DefaultPageSize),
	}
	page, err := h.svc.List(r.Context(), q)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, page)
}

func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, p)
}

func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := appCtx.GetActor(r.Context())
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "post_id"), actor); err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
