package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/metrics"
	"github.com/baechuer/content-platform/internal/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var timeNow = time.Now

// Delivery outcomes, also used as metric labels.
const (
	outcomeAck        = "ack"
	outcomeRetry      = "retry"
	outcomeDeadLetter = "dead_letter"
	outcomeUnacked    = "unacked"
	outcomeRequeue    = "requeue"
)

// Subscribe binds a fresh exclusive, server-named queue to the exchange with
// routingKey and starts delivering to h, one message at a time. The binding
// is remembered and re-declared on every reconnect.
func (c *Client) Subscribe(routingKey string, h event.HandlerFunc) error {
	if !event.ValidBindingKey(routingKey) {
		return fmt.Errorf("invalid binding key %q", routingKey)
	}
	if h == nil {
		return errors.New("nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return ErrClosed
	}

	b := &binding{routingKey: routingKey, handler: h}
	if c.healthyLocked() {
		if err := c.bindLocked(b); err != nil {
			return err
		}
		if err := c.startConsumerLocked(b); err != nil {
			return err
		}
		c.setStateLocked(StateConsuming)
	}
	c.bindings = append(c.bindings, b)
	return nil
}

func (c *Client) bindLocked(b *binding) error {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue for %q: %w", b.routingKey, err)
	}
	if err := c.ch.QueueBind(q.Name, b.routingKey, c.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", q.Name, b.routingKey, err)
	}
	b.queue = q.Name
	return nil
}

func (c *Client) startConsumerLocked(b *binding) error {
	tag := fmt.Sprintf("%s.%s.%d", c.opts.Service, b.routingKey, c.gen)
	deliveries, err := c.ch.Consume(b.queue, tag, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", b.queue, err)
	}
	b.tag = tag

	lg := c.lg.With().Str("queue", b.queue).Str("binding", b.routingKey).Logger()
	lg.Info().Msg("consumer started")

	c.consumers.Add(1)
	go c.consume(b.queue, b.handler, deliveries, lg)
	return nil
}

// consume runs until the delivery channel closes (cancel, channel close or
// connection loss). Messages on one queue are handled strictly in order.
func (c *Client) consume(queue string, h event.HandlerFunc, deliveries <-chan amqp.Delivery, lg zerolog.Logger) {
	defer c.consumers.Done()
	for d := range deliveries {
		c.handle(queue, h, d, lg)
	}
	lg.Info().Msg("consumer stopped")
}

func (c *Client) handle(queue string, h event.HandlerFunc, d amqp.Delivery, lg zerolog.Logger) {
	start := timeNow()
	env := c.envelope(d)

	lg = lg.With().
		Str("routing_key", env.RoutingKey).
		Str("message_id", env.MessageID).
		Int("attempt", env.Attempt).
		Bool("redelivered", env.Redelivered).
		Logger()

	ctx := tracing.ExtractHeaders(context.Background(), d.Headers)
	ctx, span := tracing.Tracer().Start(ctx, "consume "+env.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queue),
			attribute.String("messaging.message.id", env.MessageID),
		),
	)
	ctx = lg.WithContext(ctx)

	err := invoke(ctx, h, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
	}
	outcome := c.settle(ctx, queue, d, env, err, lg)
	span.SetAttributes(attribute.String("messaging.outcome", outcome))
	span.End()

	metrics.RecordConsumed(env.RoutingKey, outcome, timeNow().Sub(start))
}

func (c *Client) envelope(d amqp.Delivery) event.Envelope {
	env := event.Envelope{
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		MessageID:   d.MessageId,
		Type:        d.Type,
		DeliveryTag: d.DeliveryTag,
		Redelivered: d.Redelivered,
		Attempt:     getAttempt(d.Headers),
	}
	// Retries arrive through the default exchange addressed to the queue.
	if rk, ok := d.Headers[headerOriginalRoutingKey].(string); ok && rk != "" {
		env.RoutingKey = rk
		env.Exchange = c.opts.Exchange
	}
	return env
}

func invoke(ctx context.Context, h event.HandlerFunc, env event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}

// settle acknowledges, retries or dead-letters the delivery and returns the
// outcome label.
func (c *Client) settle(ctx context.Context, queue string, d amqp.Delivery, env event.Envelope, herr error, lg zerolog.Logger) string {
	if herr == nil {
		if err := d.Ack(false); err != nil {
			lg.Warn().Err(err).Msg("ack failed, broker will redeliver")
		}
		return outcomeAck
	}

	if isPermanent(herr) {
		lg.Error().Err(herr).Msg("permanent handler failure, dead-lettering")
		return c.deadLetter(ctx, d, env, "malformed", herr, lg)
	}

	if c.opts.Failure == FailureUnacked {
		lg.Error().Err(herr).Msg("handler failed, leaving message unacked")
		return outcomeUnacked
	}

	attempt := env.Attempt + 1
	if attempt >= c.opts.MaxAttempts {
		lg.Error().Err(herr).Int("max_attempts", c.opts.MaxAttempts).Msg("handler failed, attempts exhausted")
		return c.deadLetter(ctx, d, env, "max_attempts_exceeded", herr, lg)
	}

	delay := retryDelay(c.opts.RetryDelay, attempt)
	lg.Warn().Err(herr).Dur("delay", delay).Msg("handler failed, scheduling retry")
	if !sleepOrDone(c.stop, delay) {
		// Shutting down: the broker redelivers it once the channel closes.
		return outcomeUnacked
	}

	headers := copyHeaders(d.Headers)
	headers[headerRetryCount] = int32(attempt)
	headers[headerOriginalRoutingKey] = env.RoutingKey

	msg := republishing(d, headers)
	c.mu.Lock()
	err := c.publishLocked(ctx, "", queue, msg)
	c.mu.Unlock()
	if err != nil {
		lg.Error().Err(err).Msg("retry republish failed, requeueing")
		_ = d.Nack(false, true)
		return outcomeRequeue
	}
	if err := d.Ack(false); err != nil {
		lg.Warn().Err(err).Msg("ack after retry republish failed")
	}
	return outcomeRetry
}

func (c *Client) deadLetter(ctx context.Context, d amqp.Delivery, env event.Envelope, reason string, herr error, lg zerolog.Logger) string {
	headers := copyHeaders(d.Headers)
	headers[headerOriginalRoutingKey] = env.RoutingKey
	headers[headerDeadLetterReason] = reason
	headers[headerDeadLetterLastError] = truncate(herr.Error(), 512)
	headers[headerRetryCount] = int32(env.Attempt)

	c.mu.Lock()
	err := c.publishLocked(ctx, c.dlxName(), c.opts.Service+"."+env.RoutingKey, republishing(d, headers))
	c.mu.Unlock()
	if err != nil {
		lg.Error().Err(err).Msg("dead-letter publish failed, requeueing")
		_ = d.Nack(false, true)
		return outcomeRequeue
	}
	if err := d.Ack(false); err != nil {
		lg.Warn().Err(err).Msg("ack after dead-letter failed")
	}
	return outcomeDeadLetter
}

func republishing(d amqp.Delivery, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Timestamp:    d.Timestamp,
		Headers:      headers,
		Body:         d.Body,
	}
}

func copyHeaders(h amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range h {
		out[k] = v
	}
	return out
}

func getAttempt(h amqp.Table) int {
	if h == nil {
		return 0
	}
	switch v := h[headerRetryCount].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 10*time.Second {
			return 10 * time.Second
		}
	}
	return d
}

// sleepOrDone returns false if stop closed before d elapsed.
func sleepOrDone(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
