package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/content-platform/internal/infrastructure/caching/redis"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newStore(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, redis.NewFromClient(rdb)
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("miss_loads_and_populates_with_ttl", func(t *testing.T) {
		mr, store := newStore(t)
		loads := 0
		load := func(context.Context) (item, error) {
			loads++
			return item{ID: "1", Name: "first"}, nil
		}

		got, err := ReadThrough(ctx, store, NSPost, PostKey("1"), time.Hour, load)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.True(t, mr.Exists("post:1"))
		assert.Equal(t, time.Hour, mr.TTL("post:1"))

		got, err = ReadThrough(ctx, store, NSPost, PostKey("1"), time.Hour, load)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.Equal(t, 1, loads, "second read is a hit")
	})

	t.Run("expired_entry_is_reloaded", func(t *testing.T) {
		mr, store := newStore(t)
		loads := 0
		load := func(context.Context) (item, error) {
			loads++
			return item{ID: "1"}, nil
		}

		_, err := ReadThrough(ctx, store, NSPostList, PostListKey(1, 10), 5*time.Minute, load)
		require.NoError(t, err)
		mr.FastForward(6 * time.Minute)
		_, err = ReadThrough(ctx, store, NSPostList, PostListKey(1, 10), 5*time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 2, loads)
	})

	t.Run("load_error_is_returned_and_not_cached", func(t *testing.T) {
		mr, store := newStore(t)
		_, err := ReadThrough(ctx, store, NSPost, PostKey("x"), time.Hour, func(context.Context) (item, error) {
			return item{}, errors.New("db down")
		})
		require.Error(t, err)
		assert.False(t, mr.Exists("post:x"))
	})

	t.Run("cache_outage_falls_through_to_store", func(t *testing.T) {
		mr, store := newStore(t)
		mr.Close()

		got, err := ReadThrough(ctx, store, NSPost, PostKey("1"), time.Hour, func(context.Context) (item, error) {
			return item{ID: "1", Name: "from-db"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "from-db", got.Name)
	})

	t.Run("nil_store_disables_caching", func(t *testing.T) {
		got, err := ReadThrough(ctx, nil, NSPost, PostKey("1"), time.Hour, func(context.Context) (item, error) {
			return item{ID: "1"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "1", got.ID)
	})
}

func TestInvalidator(t *testing.T) {
	ctx := context.Background()

	t.Run("sweeps_list_namespace_when_any_list_key_exists", func(t *testing.T) {
		mr, store := newStore(t)
		require.NoError(t, mr.Set("posts:1:10", "[]"))
		require.NoError(t, mr.Set("posts:2:10", "[]"))
		require.NoError(t, mr.Set("post:P1", "{}"))
		require.NoError(t, mr.Set("search:go:10", "[]"))

		inv := NewInvalidator(store, NSPostList, NSPost, PostKey)
		strategy, err := inv.Invalidate(ctx, "P1")
		require.NoError(t, err)

		assert.Equal(t, "sweep", strategy)
		assert.False(t, mr.Exists("posts:1:10"))
		assert.False(t, mr.Exists("posts:2:10"))
		assert.True(t, mr.Exists("post:P1"), "targeted key is left to its ttl when the namespace is swept")
		assert.True(t, mr.Exists("search:go:10"), "other namespaces untouched")
	})

	t.Run("falls_back_to_entity_key", func(t *testing.T) {
		mr, store := newStore(t)
		require.NoError(t, mr.Set("post:P1", "{}"))
		require.NoError(t, mr.Set("post:P2", "{}"))

		inv := NewInvalidator(store, NSPostList, NSPost, PostKey)
		strategy, err := inv.Invalidate(ctx, "P1")
		require.NoError(t, err)

		assert.Equal(t, "targeted", strategy)
		assert.False(t, mr.Exists("post:P1"))
		assert.True(t, mr.Exists("post:P2"))
	})

	t.Run("absent_keys_are_not_an_error", func(t *testing.T) {
		_, store := newStore(t)
		_, err := NewInvalidator(store, NSPostList, NSPost, PostKey).Invalidate(ctx, "nope")
		assert.NoError(t, err)
	})

	t.Run("entity_without_list_views", func(t *testing.T) {
		mr, store := newStore(t)
		require.NoError(t, mr.Set("media:M1", "{}"))

		strategy, err := NewInvalidator(store, "", NSMedia, MediaKey).Invalidate(ctx, "M1")
		require.NoError(t, err)
		assert.Equal(t, "targeted", strategy)
		assert.False(t, mr.Exists("media:M1"))
	})

	t.Run("store_error_is_returned", func(t *testing.T) {
		mr, store := newStore(t)
		mr.Close()
		_, err := NewInvalidator(store, NSPostList, NSPost, PostKey).Invalidate(ctx, "P1")
		assert.Error(t, err)
	})

	t.Run("removed_entity_key_goes_with_the_sweep", func(t *testing.T) {
		mr, store := newStore(t)
		require.NoError(t, mr.Set("posts:1:10", "[]"))
		require.NoError(t, mr.Set("post:P1", "{}"))
		require.NoError(t, mr.Set("post:P2", "{}"))

		strategy, err := NewInvalidator(store, NSPostList, NSPost, PostKey).InvalidateRemoved(ctx, "P1")
		require.NoError(t, err)

		assert.Equal(t, "sweep", strategy)
		assert.False(t, mr.Exists("posts:1:10"))
		assert.False(t, mr.Exists("post:P1"))
		assert.True(t, mr.Exists("post:P2"))
	})

	t.Run("removed_media_sweeps_user_lists", func(t *testing.T) {
		mr, store := newStore(t)
		require.NoError(t, mr.Set(MediaListKey("u1"), "[]"))
		require.NoError(t, mr.Set(MediaKey("M1"), "{}"))

		strategy, err := NewInvalidator(store, NSMediaList, NSMedia, MediaKey).InvalidateRemoved(ctx, "M1")
		require.NoError(t, err)

		assert.Equal(t, "sweep", strategy)
		assert.False(t, mr.Exists(MediaListKey("u1")))
		assert.False(t, mr.Exists(MediaKey("M1")))
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "posts:2:10", PostListKey(2, 10))
	assert.Equal(t, "post:abc", PostKey("abc"))
	assert.Equal(t, "search:golang:20", SearchKey("golang", 20))
	assert.Equal(t, "media:m1", MediaKey("m1"))
	assert.Equal(t, "media:list:u1", MediaListKey("u1"))
}
