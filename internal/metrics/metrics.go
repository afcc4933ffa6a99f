// Package metrics exposes sync loop and backend request metrics to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/outingsync/internal/sync"
)

const namespace = "outingsync"

// Collector holds all Prometheus metrics for the client.
type Collector struct {
	registry *prometheus.Registry

	// Sync loop metrics
	Ticks   *prometheus.CounterVec
	Errors  *prometheus.CounterVec
	Merged  *prometheus.CounterVec
	Notices *prometheus.CounterVec

	// Write metrics
	Submissions *prometheus.CounterVec

	// Backend request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	ticks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_ticks_total",
			Help:      "Total number of sync ticks by outcome",
		},
		[]string{"loop", "outcome"},
	)

	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Total number of failed sync requests by error kind",
		},
		[]string{"loop", "kind"},
	)

	merged := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_items_merged_total",
			Help:      "Total number of items added or replaced by merges",
		},
		[]string{"loop"},
	)

	notices := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_notices_total",
			Help:      "Total number of notices raised for changes by others",
		},
		[]string{"loop"},
	)

	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_submissions_total",
			Help:      "Total number of optimistic writes by result",
		},
		[]string{"kind", "result"},
	)

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of backend requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		ticks,
		errs,
		merged,
		notices,
		submissions,
		requests,
		requestDuration,
		collectors.NewGoCollector(),
	)

	return &Collector{
		registry:        registry,
		Ticks:           ticks,
		Errors:          errs,
		Merged:          merged,
		Notices:         notices,
		Submissions:     submissions,
		Requests:        requests,
		RequestDuration: requestDuration,
	}
}

// ObserveTick implements sync.Observer.
func (c *Collector) ObserveTick(res sync.TickResult) {
	c.Ticks.WithLabelValues(res.Loop, string(res.Outcome)).Inc()

	if res.Err != nil {
		c.Errors.WithLabelValues(res.Loop, string(res.Err.Kind)).Inc()
	}
	if n := res.Merge.Added + res.Merge.Replaced; n > 0 {
		c.Merged.WithLabelValues(res.Loop).Add(float64(n))
	}
	if res.Merge.Notice != nil {
		c.Notices.WithLabelValues(res.Loop).Inc()
	}
}

// ObserveWrite implements sync.WriteObserver.
func (c *Collector) ObserveWrite(kind string, result sync.WriteState) {
	c.Submissions.WithLabelValues(kind, string(result)).Inc()
}

// ObserveRequest implements api.RequestObserver. Status 0 means the request
// never got a response.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
