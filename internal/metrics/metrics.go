package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the query pipeline collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	retrievalResults *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	confidence       prometheus.Histogram
	indexDocuments   prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingres_queries_total",
			Help: "Queries processed by intent and outcome",
		}, []string{"intent", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingres_query_latency_ms",
			Help:    "End-to-end query latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"intent"}),
		retrievalResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingres_retrieval_results",
			Help:    "Hits returned per retrieval channel",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20, 50, 100},
		}, []string{"channel"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingres_fallbacks_total",
			Help: "Templated answers by reason",
		}, []string{"reason"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingres_confidence",
			Help:    "Confidence score distribution",
			Buckets: []float64{0, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		indexDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingres_index_documents",
			Help: "Documents held by the vector index",
		}),
	}
	r.registry.MustRegister(r.queries, r.latency, r.retrievalResults, r.fallbacks, r.confidence, r.indexDocuments)
	return r
}

// ObserveQuery records one finished query.
func (r *Recorder) ObserveQuery(intent, outcome string, latency time.Duration, confidence float64) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(intent, outcome).Inc()
	r.latency.WithLabelValues(intent).Observe(float64(latency.Milliseconds()))
	r.confidence.Observe(confidence)
}

// ObserveRetrieval records the hit count of one channel.
func (r *Recorder) ObserveRetrieval(channel string, results int) {
	if r == nil {
		return
	}
	r.retrievalResults.WithLabelValues(channel).Observe(float64(results))
}

// IncFallback counts a templated answer.
func (r *Recorder) IncFallback(reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(reason).Inc()
}

// SetIndexDocuments publishes the index size.
func (r *Recorder) SetIndexDocuments(n int) {
	if r == nil {
		return
	}
	r.indexDocuments.Set(float64(n))
}

// Registry exposes the private registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
