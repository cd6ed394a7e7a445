// Package metrics exposes Prometheus metrics for SEFAZ calls, the
// certificate cache and emission outcomes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
)

const namespace = "nfe"

// Collector holds all emitter metrics. It implements sefaz.Observer,
// keystore.CacheObserver and emission.StatusSink.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	transitions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	attempts    prometheus.Histogram
}

// NewCollector registers the metrics on a private registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sefaz",
			Name:      "requests_total",
			Help:      "SEFAZ web service calls by service and outcome",
		}, []string{"service", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sefaz",
			Name:      "request_duration_seconds",
			Help:      "SEFAZ web service call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"service"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "cache_lookups_total",
			Help:      "Certificate cache lookups by result",
		}, []string{"result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emission",
			Name:      "transitions_total",
			Help:      "Emission record transitions by target status",
		}, []string{"status"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emission",
			Name:      "outcomes_total",
			Help:      "Terminal emission outcomes by status and SEFAZ code",
		}, []string{"status", "code"}),
		attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "emission",
			Name:      "poll_attempts",
			Help:      "Polling attempts needed to resolve a batch",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// ObserveRequest records one SEFAZ call
func (c *Collector) ObserveRequest(svc sefaz.Service, outcome string, d time.Duration) {
	c.requests.WithLabelValues(string(svc), outcome).Inc()
	c.requestDuration.WithLabelValues(string(svc)).Observe(d.Seconds())
}

// CertificateCache records a cache hit or miss
func (c *Collector) CertificateCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// Notify counts a status transition
func (c *Collector) Notify(_ context.Context, ev emission.Event) error {
	c.transitions.WithLabelValues(string(ev.To)).Inc()
	if ev.To.Terminal() {
		c.outcomes.WithLabelValues(string(ev.To), ev.StatusCode).Inc()
		if ev.Attempt > 0 {
			c.attempts.Observe(float64(ev.Attempt))
		}
	}
	return nil
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
