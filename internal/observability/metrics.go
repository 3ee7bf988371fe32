// Package observability holds the Prometheus collectors and the component
// health monitor shared by the CLI and the HTTP server.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis origins.
const (
	OriginBackend   = "backend"
	OriginCache     = "cache"
	OriginSynthetic = "synthetic"
)

// Metrics is the set of forensics collectors, registered on a private
// registry so tests can build as many as they like.
type Metrics struct {
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	FallbacksTotal    *prometheus.CounterVec
	SchemaRejections  prometheus.Counter
	GenerationSeconds prometheus.Histogram
	DatasetRiskScore  prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WSClients           prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide collectors.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates the collectors on a fresh registry, including the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forensics_analyses_total",
			Help: "Datasets served, by origin",
		}, []string{"origin"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forensics_analysis_duration_seconds",
			Help:    "Time to produce a dataset, by origin",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"origin"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forensics_backend_fallbacks_total",
			Help: "Backend failures answered with a synthetic dataset, by reason",
		}, []string{"reason"}),
		SchemaRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "forensics_schema_rejections_total",
			Help: "Backend documents rejected by dataset validation",
		}),
		GenerationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "forensics_generation_duration_seconds",
			Help:    "Synthetic dataset generation latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		DatasetRiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "forensics_dataset_risk_score",
			Help:    "Overall risk score of served datasets",
			Buckets: prometheus.LinearBuckets(10, 10, 9),
		}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forensics_http_requests_total",
			Help: "HTTP requests, by route and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forensics_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "forensics_ws_clients",
			Help: "Connected websocket subscribers",
		}),
	}
}

// RecordAnalysis counts one served dataset.
func (m *Metrics) RecordAnalysis(origin string, riskScore float64, d time.Duration) {
	m.AnalysesTotal.WithLabelValues(origin).Inc()
	m.AnalysisDuration.WithLabelValues(origin).Observe(d.Seconds())
	m.DatasetRiskScore.Observe(riskScore)
}

// RecordFallback counts a backend failure answered synthetically.
func (m *Metrics) RecordFallback(reason string) {
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
