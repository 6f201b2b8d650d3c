package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Canvas metrics
	NodesCreatedTotal   *prometheus.CounterVec
	ExpansionsTotal     prometheus.Counter
	ExpansionChildren   prometheus.Histogram
	DuplicateEdgesTotal prometheus.Counter
	RacesLostTotal      prometheus.Counter
	OverlapResolutions  *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge

	// Generation metrics
	GenerationRequests *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		NodesCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_created_total",
				Help:      "Total number of canvas nodes created",
			},
			[]string{"kind"},
		),
		ExpansionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expansions_total",
				Help:      "Total number of nodes expanded",
			},
		),
		ExpansionChildren: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "expansion_children",
				Help:      "Number of children created per expansion",
				Buckets:   []float64{0, 1, 2, 3, 4, 6, 9, 12},
			},
		),
		DuplicateEdgesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_edges_dropped_total",
				Help:      "Total number of duplicate edges removed by reconciliation",
			},
		),
		RacesLostTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_races_lost_total",
				Help:      "Generation triggers skipped because the node was already claimed",
			},
		),
		OverlapResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overlap_resolutions_total",
				Help:      "Candidates moved to avoid overlap, by resolution",
			},
			[]string{"result"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Canvas sessions currently held in memory",
			},
		),
		GenerationRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_requests_total",
				Help:      "Total number of generation service calls",
			},
			[]string{"operation", "status"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Generation service call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.NodesCreatedTotal,
		c.ExpansionsTotal,
		c.ExpansionChildren,
		c.DuplicateEdgesTotal,
		c.RacesLostTotal,
		c.OverlapResolutions,
		c.ActiveSessions,
		c.GenerationRequests,
		c.GenerationDuration,
	)

	return c
}

// Registry exposes the underlying registry, mostly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) NodesCreated(kind string, n int) {
	c.NodesCreatedTotal.WithLabelValues(kind).Add(float64(n))
}

func (c *Collector) Expansion(children int) {
	c.ExpansionsTotal.Inc()
	c.ExpansionChildren.Observe(float64(children))
}

func (c *Collector) DuplicateEdgesDropped(n int) {
	c.DuplicateEdgesTotal.Add(float64(n))
}

func (c *Collector) RaceLost() {
	c.RacesLostTotal.Inc()
}

func (c *Collector) OverlapResolved(fallback bool) {
	result := "shifted"
	if fallback {
		result = "fallback"
	}
	c.OverlapResolutions.WithLabelValues(result).Inc()
}

func (c *Collector) Generation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.GenerationRequests.WithLabelValues(operation, status).Inc()
	c.GenerationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SessionOpened and SessionClosed track the active session gauge
func (c *Collector) SessionOpened() { c.ActiveSessions.Inc() }
func (c *Collector) SessionClosed() { c.ActiveSessions.Dec() }

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
