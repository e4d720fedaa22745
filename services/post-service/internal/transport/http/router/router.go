package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/baechuer/content-platform/internal/config"
	"github.com/baechuer/content-platform/internal/metrics"
	sharedh "github.com/baechuer/content-platform/internal/transport/http/handlers"
	mw "github.com/baechuer/content-platform/internal/transport/http/middleware"
	"github.com/baechuer/content-platform/services/post-service/internal/transport/http/handlers"
)

func New(h *handlers.PostsHandler, z *sharedh.HealthHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(mw.Identity)
	r.Use(mw.AccessLog)

	if cfg.RLEnabled {
		r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
	}

	r.Get("/healthz", z.Healthz)
	r.Get("/readyz", z.Readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{post_id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireActor)
			r.Post("/", h.Create)
			r.Delete("/{post_id}", h.Delete)
		})
	})

	return r
}
