package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Idempotency metrics
	IdempotencyCreated  prometheus.Counter
	IdempotencyReplayed prometheus.Counter
	IdempotencyConflict *prometheus.CounterVec

	// Outbox metrics
	OutboxSent  prometheus.Counter
	OutboxRetry prometheus.Counter
	OutboxDead  prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		IdempotencyCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_created_total",
				Help:      "Total number of first-time charges executed",
			},
		),
		IdempotencyReplayed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_replayed_total",
				Help:      "Total number of stored responses replayed",
			},
		),
		IdempotencyConflict: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_conflict_total",
				Help:      "Total number of idempotency conflicts by kind",
			},
			[]string{"kind"},
		),
		OutboxSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_sent_total",
				Help:      "Total number of outbox events acknowledged by the bus",
			},
		),
		OutboxRetry: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_retry_total",
				Help:      "Total number of outbox publish failures scheduled for retry",
			},
		),
		OutboxDead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_dead_total",
				Help:      "Total number of outbox events moved to DEAD",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	factory.MustRegister(
		m.IdempotencyCreated,
		m.IdempotencyReplayed,
		m.IdempotencyConflict,
		m.OutboxSent,
		m.OutboxRetry,
		m.OutboxDead,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
