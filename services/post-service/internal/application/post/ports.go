package post

import (
	"context"
	"time"

	"github.com/baechuer/content-platform/internal/domain"
)

type Clock interface {
	Now() time.Time
}

type PostRepo interface {
	Create(ctx context.Context, p *domain.Post) error
	GetByID(ctx context.Context, id string) (*domain.Post, error)
	List(ctx context.Context, offset, limit int) ([]*domain.Post, int, error)

	WithTx(ctx context.Context, fn func(tr TxPostRepo) error) error
}

// TxPostRepo is the repository view inside a transaction.
type TxPostRepo interface {
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Post, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher hands an event to the broker. false means it was dropped;
// the caller logs and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) bool
}
