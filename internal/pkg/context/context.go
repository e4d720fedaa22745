// Package context carries request-scoped values set by the HTTP middleware:
// the request id and the caller identity forwarded by the gateway.
package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

const RoleAdmin = "admin"

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// GetActor reports ok only for an actor with a user id.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok && a.UserID != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
