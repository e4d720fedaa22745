package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Publish metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_events_published_total",
			Help: "Total number of events handed to the broker, by result (accepted|failed)",
		},
		[]string{"routing_key", "result"},
	)

	// Consumption metrics
	eventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_events_consumed_total",
			Help: "Total number of deliveries handled, by outcome (ack|retry|dead_letter|unacked)",
		},
		[]string{"routing_key", "outcome"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "content_handler_duration_seconds",
			Help:    "Projection handler duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"routing_key"},
	)

	// Broker lifecycle
	brokerReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_broker_reconnects_total",
			Help: "Total number of broker reconnect attempts, by trigger (publish|supervisor)",
		},
		[]string{"trigger"},
	)

	brokerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "content_broker_state",
			Help: "1 for the current broker client lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)

	// Cache
	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_requests_total",
			Help: "Read-through cache lookups, by result (hit|miss|error)",
		},
		[]string{"namespace", "result"},
	)

	cacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_invalidations_total",
			Help: "Cache invalidations, by strategy (sweep|targeted)",
		},
		[]string{"namespace", "strategy"},
	)

	// Projections
	mediaCleanupItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_media_cleanup_items_total",
			Help: "Media items processed by the post.deleted projection, by outcome (deleted|absent|failed)",
		},
		[]string{"outcome"},
	)

	searchIndexOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_search_index_ops_total",
			Help: "Search index mutations, by op (upsert|remove) and result",
		},
		[]string{"op", "result"},
	)
)

func RecordPublish(routingKey string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "failed"
	}
	eventsPublishedTotal.WithLabelValues(routingKey, result).Inc()
}

func RecordConsumed(routingKey, outcome string, took time.Duration) {
	eventsConsumedTotal.WithLabelValues(routingKey, outcome).Inc()
	handlerDuration.WithLabelValues(routingKey).Observe(took.Seconds())
}

func RecordReconnect(trigger string) {
	brokerReconnectsTotal.WithLabelValues(trigger).Inc()
}

// SetBrokerState flips the gauge so exactly one of states reads 1.
func SetBrokerState(current string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		brokerState.WithLabelValues(s).Set(v)
	}
}

func RecordCacheLookup(namespace, result string) {
	cacheRequestsTotal.WithLabelValues(namespace, result).Inc()
}

func RecordInvalidation(namespace, strategy string) {
	cacheInvalidationsTotal.WithLabelValues(namespace, strategy).Inc()
}

func RecordMediaCleanup(outcome string) {
	mediaCleanupItemsTotal.WithLabelValues(outcome).Inc()
}

func RecordSearchIndex(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	searchIndexOpsTotal.WithLabelValues(op, result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
