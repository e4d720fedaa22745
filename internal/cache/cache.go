// Package cache implements the read-through lookups and invalidation rules
// shared by every service. Entries are never authoritative: a cache failure
// is logged and the caller falls through to its store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/baechuer/content-platform/internal/metrics"
	"github.com/rs/zerolog"
)

// Store is implemented by the redis caching client.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// Namespaces and key builders.
const (
	NSPostList  = "posts"
	NSPost      = "post"
	NSSearch    = "search"
	NSMedia     = "media"
	NSMediaList = "media:list"
)

func PostListKey(page, limit int) string { return fmt.Sprintf("%s:%d:%d", NSPostList, page, limit) }
func PostKey(id string) string           { return NSPost + ":" + id }
func SearchKey(query string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", NSSearch, query, limit)
}
func MediaKey(id string) string         { return NSMedia + ":" + id }
func MediaListKey(userID string) string { return NSMediaList + ":" + userID }

// ReadThrough returns the cached value under key or loads, stores and
// returns it. A nil store disables caching.
func ReadThrough[T any](ctx context.Context, s Store, namespace, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	lg := zerolog.Ctx(ctx).With().Str("key", key).Logger()

	if s != nil {
		var cached T
		found, err := s.Get(ctx, key, &cached)
		switch {
		case err != nil:
			lg.Warn().Err(err).Msg("cache get failed")
			metrics.RecordCacheLookup(namespace, "error")
		case found:
			lg.Debug().Msg("cache hit")
			metrics.RecordCacheLookup(namespace, "hit")
			return cached, nil
		default:
			lg.Debug().Msg("cache miss")
			metrics.RecordCacheLookup(namespace, "miss")
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if s != nil {
		if err := s.Set(ctx, key, v, ttl); err != nil {
			lg.Warn().Err(err).Msg("cache set failed")
		}
	}
	return v, nil
}
