package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
)

const HeaderXRequestID = "X-Request-Id"

const maxRequestIDLen = 128

// RequestID propagates a sane incoming id or mints one, and attaches a
// request-scoped logger carrying it (plus the trace id when a span is active).
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderXRequestID))
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderXRequestID, reqID)

		ctx := appCtx.WithRequestID(r.Context(), reqID)

		lc := zlog.Logger.With().Str("request_id", reqID)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			lc = lc.Str("trace_id", sc.TraceID().String())
		}
		lg := lc.Logger()
		ctx = lg.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
