// Package metrics exposes the service counters through a Prometheus registry
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moneychat"

type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	routeDecisions    *prometheus.CounterVec
	llmCalls          *prometheus.CounterVec
	fallbacks         *prometheus.CounterVec
	importRows        *prometheus.CounterVec
	conversions       *prometheus.CounterVec
	activeConnections prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide instance
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a Metrics with its own registry, so tests never collide
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP and websocket requests by route and status.",
		}, []string{"route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by route.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		routeDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Orchestrator routing decisions and their outcome.",
		}, []string{"route", "outcome"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Completion calls by provider and result.",
		}, []string{"provider", "result"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback layers taken while composing responses.",
		}, []string{"layer"}),
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported spreadsheet rows by result.",
		}, []string{"result"}),
		conversions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "currency_conversions_total",
			Help:      "Currency conversions by result.",
		}, []string{"result"}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open websocket connections.",
		}),
	}
}

func (m *Metrics) RecordRequest(route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRoute(route, outcome string) {
	m.routeDecisions.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) RecordLLMCall(provider string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.llmCalls.WithLabelValues(provider, result).Inc()
}

// RecordFallback counts a fallback layer that ended up producing the response
func (m *Metrics) RecordFallback(layer string) {
	m.fallbacks.WithLabelValues(layer).Inc()
}

func (m *Metrics) RecordImportRow(ok bool) {
	if ok {
		m.importRows.WithLabelValues("imported").Inc()
		return
	}
	m.importRows.WithLabelValues("failed").Inc()
}

// RecordConversion takes "identity", "converted" or "failed"
func (m *Metrics) RecordConversion(result string) {
	m.conversions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementConnections() {
	m.activeConnections.Inc()
}

func (m *Metrics) DecrementConnections() {
	m.activeConnections.Dec()
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
