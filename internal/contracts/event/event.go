// Package event holds the wire contract shared by every producer and consumer
// on the content exchange: routing keys, payload shapes and decoding rules.
package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	RoutingPostCreated = "post.created"
	RoutingPostDeleted = "post.deleted"

	TypePostCreated = "PostCreated"
	TypePostDeleted = "PostDeleted"
)

// DomainEvent is created exactly once per committed mutation. Payload is
// self-contained: consumers never call back into the producing service.
type DomainEvent struct {
	ID          string
	Type        string
	RoutingKey  string
	Payload     any
	PublishedAt time.Time
}

func New(routingKey string, payload any, now time.Time) DomainEvent {
	return DomainEvent{
		ID:          uuid.NewString(),
		Type:        TypeFor(routingKey),
		RoutingKey:  routingKey,
		Payload:     payload,
		PublishedAt: now.UTC(),
	}
}

// TypeFor maps a routing key to its event type name. Unknown keys map to the key itself.
func TypeFor(routingKey string) string {
	switch routingKey {
	case RoutingPostCreated:
		return TypePostCreated
	case RoutingPostDeleted:
		return TypePostDeleted
	default:
		return routingKey
	}
}

// PostCreatedPayload is the body for routing key: post.created
type PostCreatedPayload struct {
	PostID    string    `json:"postId" validate:"required"`
	UserID    string    `json:"userId" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
}

// PostDeletedPayload is the body for routing key: post.deleted
type PostDeletedPayload struct {
	PostID   string   `json:"postId" validate:"required"`
	UserID   string   `json:"userId" validate:"required"`
	MediaIDs []string `json:"mediaIds" validate:"dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// MalformedError marks a body that can never be handled successfully.
// Consumers dead-letter it instead of retrying.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err == nil {
		return "malformed event: " + e.Reason
	}
	return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
}

func (e *MalformedError) Unwrap() error   { return e.Err }
func (e *MalformedError) Permanent() bool { return true }

// Decode unmarshals and validates a payload body.
func Decode[T any](body []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(body)) == 0 {
		return out, &MalformedError{Reason: "empty_body"}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &MalformedError{Reason: "bad_json", Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return out, &MalformedError{Reason: "invalid_payload", Err: err}
	}
	return out, nil
}

// ValidRoutingKey reports whether key is a dot-separated lowercase identifier.
func ValidRoutingKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return false
	}
	for _, part := range strings.Split(key, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
				return false
			}
		}
	}
	return true
}

// ValidBindingKey is ValidRoutingKey that also accepts the topic wildcards
// "*" (one word) and "#" (zero or more words) as whole segments.
func ValidBindingKey(key string) bool {
	if key == "" {
		return false
	}
	for _, part := range strings.Split(key, ".") {
		if part == "*" || part == "#" {
			continue
		}
		if !ValidRoutingKey(part) {
			return false
		}
	}
	return true
}

// Envelope is one delivery as seen by a handler.
type Envelope struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	MessageID   string
	Type        string
	DeliveryTag uint64
	Redelivered bool
	// Attempt counts previous failed deliveries that were republished for retry.
	Attempt int
}

// HandlerFunc handles one delivery. A nil return acknowledges it.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Typed decodes the envelope body into T before calling fn. Decode failures
// surface as *MalformedError.
func Typed[T any](fn func(ctx context.Context, payload T) error) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		p, err := Decode[T](env.Body)
		if err != nil {
			return err
		}
		return fn(ctx, p)
	}
}
