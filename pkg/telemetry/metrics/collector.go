// Package metrics exposes Prometheus metrics for the ingress.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/ganymede/pkg/config"
)

// Collector owns the Prometheus registry and the ingress metric families.
//
// Metrics:
//   - <ns>_requests_total: requests by host, listener, status class
//   - <ns>_request_duration_seconds: request duration by host, listener
//   - <ns>_upstream_retries_total: forwarding retries by backend
//   - <ns>_upstream_errors_total: forwarding failures by backend, reason
//   - <ns>_tls_handshake_errors_total: rejected handshakes
//   - <ns>_active_connections: live client connections (gauge)
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamRetries *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
	handshakeErrors prometheus.Counter
}

// NewCollector creates the registry and registers all ingress metrics.
// activeConnections, if non-nil, is sampled on scrape for the connection
// gauge so the hot path never touches prometheus state for it.
func NewCollector(cfg config.MetricsConfig, activeConnections func() float64) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of requests handled by the ingress",
			},
			[]string{"host", "listener", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of ingress requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"host", "listener"},
		),

		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_retries_total",
				Help:      "Total number of forwarding retries against freshly opened connections",
			},
			[]string{"backend"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of backend failures surfaced to clients",
			},
			[]string{"backend", "reason"},
		),

		handshakeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tls_handshake_errors_total",
				Help:      "Total number of TLS handshakes rejected",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.upstreamRetries,
		c.upstreamErrors,
		c.handshakeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if activeConnections != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "active_connections",
				Help:      "Number of live client connections",
			},
			activeConnections,
		))
	}

	return c
}

// RecordRequest records one completed request.
func (c *Collector) RecordRequest(host, listener, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(host, listener, status).Inc()
	c.requestDuration.WithLabelValues(host, listener).Observe(duration.Seconds())
}

// RecordUpstreamRetry records a retry against a fresh backend connection.
func (c *Collector) RecordUpstreamRetry(backend string) {
	c.upstreamRetries.WithLabelValues(backend).Inc()
}

// RecordUpstreamError records a backend failure surfaced to the client.
func (c *Collector) RecordUpstreamError(backend, reason string) {
	c.upstreamErrors.WithLabelValues(backend, reason).Inc()
}

// RecordHandshakeError records a rejected TLS handshake.
func (c *Collector) RecordHandshakeError() {
	c.handshakeErrors.Inc()
}

// Registry returns the underlying registry, for tests and the handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
