package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	_, ok := GetActor(context.Background())
	assert.False(t, ok)

	_, ok = GetActor(WithActor(context.Background(), Actor{Role: RoleAdmin}))
	assert.False(t, ok, "actor without user id")

	a, ok := GetActor(WithActor(context.Background(), Actor{UserID: "u1", Role: RoleAdmin}))
	assert.True(t, ok)
	assert.True(t, a.IsAdmin())
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := WithRequestID(WithActor(context.Background(), Actor{UserID: "u1"}), "rid-1")
	assert.Equal(t, "rid-1", GetRequestID(ctx))
	_, ok := GetActor(ctx)
	assert.True(t, ok, "keys do not collide")
}
