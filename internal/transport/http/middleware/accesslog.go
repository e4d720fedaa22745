package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
)

// AccessLog writes one line per request on the request-scoped logger.
// Server errors log at error level and client errors at warn.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		lg := zerolog.Ctx(r.Context())
		var e *zerolog.Event
		switch {
		case status >= 500:
			e = lg.Error()
		case status >= 400:
			e = lg.Warn()
		default:
			e = lg.Info()
		}

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if a, ok := appCtx.GetActor(r.Context()); ok {
			e = e.Str("user_id", a.UserID)
		}

		e.Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("latency", time.Since(start)).
			Str("remote_ip", r.RemoteAddr).
			Msg("http_request")
	})
}
