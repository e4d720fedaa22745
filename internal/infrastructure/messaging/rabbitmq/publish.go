package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/metrics"
	"github.com/baechuer/content-platform/internal/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Publish wraps payload in a new DomainEvent and publishes it.
func (c *Client) Publish(ctx context.Context, routingKey string, payload any) bool {
	return c.PublishEvent(ctx, event.New(routingKey, payload, timeNow()))
}

// PublishEvent hands the event to the broker. It never returns an error:
// false means the event was not accepted and has been logged. A broken
// channel triggers one lazy reconnect and one retry, unless another
// reconnect is already running, in which case the event is dropped at once.
func (c *Client) PublishEvent(ctx context.Context, ev event.DomainEvent) bool {
	ctx, span := tracing.Tracer().Start(ctx, "publish "+ev.RoutingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.opts.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", ev.RoutingKey),
			attribute.String("messaging.message.id", ev.ID),
		),
	)
	defer span.End()

	lg := c.lg.With().Str("routing_key", ev.RoutingKey).Str("event_id", ev.ID).Logger()

	body, err := json.Marshal(ev.Payload)
	if err != nil {
		lg.Error().Err(err).Msg("marshal event payload")
		span.SetStatus(codes.Error, "marshal")
		metrics.RecordPublish(ev.RoutingKey, false)
		return false
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.PublishedAt,
		Headers:      tracing.InjectHeaders(ctx, nil),
		Body:         body,
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		lg.Warn().Msg("publish after shutdown started")
		metrics.RecordPublish(ev.RoutingKey, false)
		return false
	}
	err = c.publishLocked(ctx, c.opts.Exchange, ev.RoutingKey, msg)
	connecting := c.connecting
	c.mu.Unlock()

	if err != nil {
		if connecting {
			lg.Warn().Err(err).Msg("event not published: reconnect in progress")
			span.SetStatus(codes.Error, "reconnecting")
			metrics.RecordPublish(ev.RoutingKey, false)
			return false
		}
		lg.Warn().Err(err).Msg("publish failed, reconnecting once")
		metrics.RecordReconnect("publish")
		if rerr := c.reconnect(); rerr != nil {
			lg.Error().Err(rerr).Msg("event not published: reconnect failed")
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "reconnect")
			metrics.RecordPublish(ev.RoutingKey, false)
			return false
		}
		c.mu.Lock()
		err = c.publishLocked(ctx, c.opts.Exchange, ev.RoutingKey, msg)
		c.mu.Unlock()
		if err != nil {
			lg.Error().Err(err).Msg("event not published after reconnect")
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish")
			metrics.RecordPublish(ev.RoutingKey, false)
			return false
		}
	}

	lg.Debug().Msg("event published")
	metrics.RecordPublish(ev.RoutingKey, true)
	return true
}

func (c *Client) publishLocked(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if !c.healthyLocked() {
		return errChannelNotReady
	}
	return c.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}
