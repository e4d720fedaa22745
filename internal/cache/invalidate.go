package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/content-platform/internal/metrics"
	"github.com/rs/zerolog"
)

// Invalidator drops cache entries after a mutation of one entity type.
//
// If any key exists under the list namespace, the whole namespace is swept,
// since a single mutation cannot be mapped onto the pages it affects.
// Otherwise only the entity-scoped key is deleted.
type Invalidator struct {
	store     Store
	listNS    string
	entityNS  string
	entityKey func(id string) string
}

// NewInvalidator builds an invalidator. An empty listNS means the entity type
// has no cached list views and invalidation is always targeted.
func NewInvalidator(s Store, listNS, entityNS string, entityKey func(id string) string) *Invalidator {
	return &Invalidator{store: s, listNS: listNS, entityNS: entityNS, entityKey: entityKey}
}

// Invalidate applies the rule for entity id and reports which strategy ran.
func (i *Invalidator) Invalidate(ctx context.Context, id string) (string, error) {
	if i == nil || i.store == nil {
		return "", nil
	}
	lg := zerolog.Ctx(ctx)

	if i.listNS != "" {
		keys, err := i.store.ScanKeys(ctx, i.listNS+":*")
		if err != nil {
			return "", fmt.Errorf("scan %s namespace: %w", i.listNS, err)
		}
		if len(keys) > 0 {
			if err := i.store.Delete(ctx, keys...); err != nil {
				return "", fmt.Errorf("sweep %s namespace: %w", i.listNS, err)
			}
			lg.Debug().Str("namespace", i.listNS).Int("keys", len(keys)).Msg("cache namespace swept")
			metrics.RecordInvalidation(i.listNS, "sweep")
			return "sweep", nil
		}
	}

	if i.entityKey == nil || id == "" {
		return "", nil
	}
	key := i.entityKey(id)
	if err := i.store.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("delete %s: %w", key, err)
	}
	lg.Debug().Str("key", key).Msg("cache key deleted")
	metrics.RecordInvalidation(i.entityNS, "targeted")
	return "targeted", nil
}

// InvalidateRemoved is Invalidate for an entity that no longer exists. The
// entity key is always dropped, even when the list namespace is swept, so a
// lookup by id stops serving it right away.
func (i *Invalidator) InvalidateRemoved(ctx context.Context, id string) (string, error) {
	if i == nil || i.store == nil {
		return "", nil
	}
	var dropErr error
	if i.entityKey != nil && id != "" && i.listNS != "" {
		key := i.entityKey(id)
		if err := i.store.Delete(ctx, key); err != nil {
			dropErr = fmt.Errorf("delete %s: %w", key, err)
		}
	}
	strategy, err := i.Invalidate(ctx, id)
	return strategy, errors.Join(dropErr, err)
}
