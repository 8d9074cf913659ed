// Package metrics exposes Prometheus counters for token refreshes, catalog requests and graph writes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	RefreshSuccess = "success"
	RefreshInvalid = "invalid"
	RefreshFailed  = "failed"
)

// Graph write outcomes.
const (
	WriteComplete = "complete"
	WritePartial  = "partial"
	WriteSkipped  = "skipped"
	WriteFailed   = "failed"
)

// Recorder is what the token manager, catalog client and social graph report to.
type Recorder interface {
	RecordTokenRefresh(outcome string)
	RecordCatalogRequest(statusCode int, duration time.Duration)
	RecordGraphWrite(operation, outcome string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTokenRefresh(string)               {}
func (Nop) RecordCatalogRequest(int, time.Duration) {}
func (Nop) RecordGraphWrite(string, string)         {}

// Collector implements [Recorder] with Prometheus metrics.
type Collector struct {
	tokenRefresh    *prometheus.CounterVec
	catalogRequests *prometheus.CounterVec
	catalogLatency  prometheus.Histogram
	graphWrites     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundshare_token_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundshare_catalog_requests_total",
			Help: "Catalog API responses by HTTP status; 0 for transport failures.",
		}, []string{"status"}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundshare_catalog_latency_seconds",
			Help:    "Catalog API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		graphWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundshare_graph_writes_total",
			Help: "Social graph mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(c.tokenRefresh, c.catalogRequests, c.catalogLatency, c.graphWrites)
	return c
}

func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefresh.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCatalogRequest(statusCode int, duration time.Duration) {
	c.catalogRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.catalogLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordGraphWrite(operation, outcome string) {
	c.graphWrites.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the gathered metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
