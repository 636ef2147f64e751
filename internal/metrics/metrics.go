package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neighborly_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Refresh metrics
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_refresh_runs_total",
			Help: "Total number of index refresh drain runs",
		},
		[]string{"status"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neighborly_refresh_duration_seconds",
			Help:    "Duration of index refresh drain runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DirtyItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neighborly_dirty_items",
			Help: "Number of content items currently marked dirty",
		},
	)

	// Embedding metrics
	EmbeddingGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_embedding_generations_total",
			Help: "Total number of embedding generations",
		},
		[]string{"status"},
	)

	IndexedItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neighborly_indexed_items",
			Help: "Number of content items currently in the embedding index",
		},
	)

	// Summarization metrics
	SummarizerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_summarizer_calls_total",
			Help: "Total number of summarizer calls",
		},
		[]string{"status"},
	)

	SummaryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_summary_cache_lookups_total",
			Help: "Total number of summary cache lookups",
		},
		[]string{"result"},
	)

	// QA metrics
	QuestionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_questions_processed_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	QuestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neighborly_question_duration_seconds",
			Help:    "Duration of question answering in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// OpenAI metrics
	OpenAIAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_openai_api_calls_total",
			Help: "Total number of OpenAI API calls",
		},
		[]string{"operation", "status"},
	)

	OpenAIAPICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neighborly_openai_api_call_duration_seconds",
			Help:    "Duration of OpenAI API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Content metrics
	ContentMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neighborly_content_mutations_total",
			Help: "Total number of content mutations observed by the engine",
		},
		[]string{"kind", "operation"},
	)
)
