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
	"github.com/baechuer/content-platform/services/media-service/internal/handler"
)

func New(h *handler.MediaHandler, z *sharedh.HealthHandler, cfg *config.Config) http.Handler {
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

	r.With(mw.RequireActor).Get("/api/media", h.Mine)
	r.Get("/api/media/{media_id}", h.Get)

	return r
}
