// Package metrics exposes ledger counters and histograms to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry; each instance is independent.
type Collector struct {
	registry         *prometheus.Registry
	transfers        *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	conflictRetries  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// NewCollector registers all ledger metrics on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Money movements by transaction type and outcome code",
		}, []string{"type", "outcome"}),
		transferDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time from request validation to commit or rejection",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		conflictRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Units of work retried after a write conflict",
		}, []string{"type"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveTransfer records one finished money movement. outcome is "ok" or an error code.
func (c *Collector) ObserveTransfer(txType, outcome string, d time.Duration) {
	c.transfers.WithLabelValues(txType, outcome).Inc()
	c.transferDuration.WithLabelValues(txType).Observe(d.Seconds())
}

// IncConflictRetry counts one retried unit of work.
func (c *Collector) IncConflictRetry(txType string) {
	c.conflictRetries.WithLabelValues(txType).Inc()
}

// ObserveHTTP counts one served request.
func (c *Collector) ObserveHTTP(method, route string, status int) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
