package tracing

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectHeaders writes W3C trace context from ctx into AMQP headers.
// A nil table is allocated.
func InjectHeaders(ctx context.Context, h amqp.Table) amqp.Table {
	if h == nil {
		h = amqp.Table{}
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(h))
	return h
}

// ExtractHeaders returns ctx enriched with the trace context carried in h.
func ExtractHeaders(ctx context.Context, h amqp.Table) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier(h))
}

type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

var _ propagation.TextMapCarrier = headerCarrier{}
