package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	appCtx "github.com/baechuer/content-platform/internal/pkg/context"
	"github.com/baechuer/content-platform/internal/transport/http/response"
)

// Identity headers set by the gateway after it has verified the token.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

const defaultRole = "user"

// Identity attaches the gateway identity, when present, to the context and
// to the request logger. It never rejects a request.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if uid == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
		if role == "" {
			role = defaultRole
		}

		ctx := appCtx.WithActor(r.Context(), appCtx.Actor{UserID: uid, Role: role})
		ctx = zerolog.Ctx(ctx).With().Str("user_id", uid).Logger().WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActor rejects requests that arrive without a gateway identity.
func RequireActor(next http.Handler) http.Handler {
	return Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := appCtx.GetActor(r.Context()); !ok {
			response.Fail(w, http.StatusUnauthorized, "unauthorized", "missing caller identity", nil, response.RequestIDFromRequest(r))
			return
		}
		next.ServeHTTP(w, r)
	}))
}
