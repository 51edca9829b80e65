// Package metrics exposes Prometheus collectors and host metadata for benchmark runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loredb-bench/tracker/types"
)

const namespace = "benchtrack"

// Collector holds the tracker's Prometheus metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	EntriesIngested *prometheus.CounterVec
	AlertsDetected  *prometheus.CounterVec
	BenchValue      *prometheus.GaugeVec
	LastIngest      *prometheus.GaugeVec
	HTTPDuration    *prometheus.HistogramVec
	WSClients       prometheus.Gauge
}

// NewCollector registers all tracker metrics plus the Go runtime collectors
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		EntriesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_ingested_total",
			Help:      "Benchmark entries appended to the history.",
		}, []string{"suite", "tool"}),
		AlertsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Performance alerts raised by severity.",
		}, []string{"suite", "severity"}),
		BenchValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bench_value",
			Help:      "Latest recorded value of each bench.",
		}, []string{"suite", "bench", "unit"}),
		LastIngest: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_ingest_timestamp_seconds",
			Help:      "Date of the newest entry per suite.",
		}, []string{"suite"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}
}

// Registry returns the registry metrics are registered on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveEntry records a newly ingested entry
func (c *Collector) ObserveEntry(suite string, entry *types.Entry) {
	c.EntriesIngested.WithLabelValues(suite, entry.Tool).Inc()
	c.LastIngest.WithLabelValues(suite).Set(float64(entry.Date) / 1000)
	for _, b := range entry.Benches {
		c.BenchValue.WithLabelValues(suite, b.Name, b.Unit).Set(b.Value)
	}
}

// ObserveAlerts counts alerts by severity
func (c *Collector) ObserveAlerts(alerts []*types.Alert) {
	for _, a := range alerts {
		c.AlertsDetected.WithLabelValues(a.Suite, a.Severity).Inc()
	}
}

// ObserveHTTP records one API request
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
