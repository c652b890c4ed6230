package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document metrics
	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_documents_processed_total",
			Help: "Total number of documents processed",
		},
		[]string{"doc_type", "status"}, // status: passed|failed|error
	)

	DocumentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enlitens_document_duration_seconds",
			Help:    "End-to-end document processing duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"doc_type"},
	)

	DocumentQuality = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enlitens_document_quality_score",
			Help:    "Overall quality score per document",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.65, 0.7, 0.75, 0.8, 0.9, 1.0},
		},
		[]string{"doc_type"},
	)

	// Agent metrics
	AgentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_agent_calls_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent", "status"}, // status: done|skipped|empty|error
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enlitens_agent_latency_seconds",
			Help:    "Agent execution latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	AgentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_agent_retries_total",
			Help: "Total number of agent retry attempts beyond the first",
		},
		[]string{"agent"},
	)

	AgentCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_agent_cache_hits_total",
			Help: "Total number of agent output cache hits",
		},
		[]string{"agent"},
	)

	// Retrieval metrics
	RetrievalQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_retrieval_queries_total",
			Help: "Total number of hybrid retrieval queries",
		},
		[]string{"status"}, // status: success|error|degraded
	)

	RetrievalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enlitens_retrieval_latency_seconds",
			Help:    "Hybrid retrieval latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enlitens_chunks_indexed_total",
			Help: "Total number of chunks indexed into the vector store",
		},
	)

	// Validation metrics
	ValidationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_validation_outcomes_total",
			Help: "Total validation outcomes",
		},
		[]string{"outcome"}, // outcome: passed|failed
	)

	CitationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enlitens_citation_failures_total",
			Help: "Total number of failed citation verifications",
		},
	)

	// Embedding metrics
	EmbeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enlitens_embedding_requests_total",
			Help: "Total number of embedding API requests",
		},
		[]string{"provider", "status"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(DocumentDuration)
	prometheus.MustRegister(DocumentQuality)

	prometheus.MustRegister(AgentCalls)
	prometheus.MustRegister(AgentLatency)
	prometheus.MustRegister(AgentRetries)
	prometheus.MustRegister(AgentCacheHits)

	prometheus.MustRegister(RetrievalQueries)
	prometheus.MustRegister(RetrievalLatency)
	prometheus.MustRegister(ChunksIndexed)

	prometheus.MustRegister(ValidationOutcomes)
	prometheus.MustRegister(CitationFailures)

	prometheus.MustRegister(EmbeddingRequests)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDocument records the outcome of one processed document
func RecordDocument(docType, status string, duration time.Duration, quality float64) {
	DocumentsProcessed.WithLabelValues(docType, status).Inc()
	DocumentDuration.WithLabelValues(docType).Observe(duration.Seconds())
	if quality > 0 {
		DocumentQuality.WithLabelValues(docType).Observe(quality)
	}
}

// RecordAgent records one agent execution
func RecordAgent(agent, status string, latency time.Duration, attempts int, cached bool) {
	AgentCalls.WithLabelValues(agent, status).Inc()
	AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
	if attempts > 1 {
		AgentRetries.WithLabelValues(agent).Add(float64(attempts - 1))
	}
	if cached {
		AgentCacheHits.WithLabelValues(agent).Inc()
	}
}

// RecordRetrieval records one hybrid retrieval query
func RecordRetrieval(status string, latency time.Duration) {
	RetrievalQueries.WithLabelValues(status).Inc()
	RetrievalLatency.Observe(latency.Seconds())
}

// RecordValidation records one validation outcome
func RecordValidation(passed bool, citationFailures int) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	ValidationOutcomes.WithLabelValues(outcome).Inc()
	if citationFailures > 0 {
		CitationFailures.Add(float64(citationFailures))
	}
}
