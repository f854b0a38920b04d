package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claimlens_verification_duration_seconds",
			Help:    "Time spent verifying a claim end to end",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"verdict", "escalated"},
	)

	verificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimlens_verifications_total",
			Help: "Verifications completed, by verdict label",
		},
		[]string{"verdict"},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimlens_escalations_total",
			Help: "External search escalations, by outcome",
		},
		[]string{"outcome"},
	)

	externalResultsCached = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimlens_external_results_cached_total",
			Help: "External search results persisted into the evidence store",
		},
	)

	evidenceRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claimlens_evidence_retrieved",
			Help:    "Evidence items retrieved per verification",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
	)

	embeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimlens_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	embeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimlens_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimlens_llm_tokens_total",
			Help: "LLM tokens consumed, by direction",
		},
		[]string{"direction"},
	)
)

// Init registers all collectors. Call once at startup.
func Init() {
	prometheus.MustRegister(
		verificationDuration,
		verificationTotal,
		escalationsTotal,
		externalResultsCached,
		evidenceRetrieved,
		embeddingCacheHits,
		embeddingCacheMisses,
		llmTokens,
	)
}

func RecordVerification(verdict string, escalated bool, seconds float64) {
	escLabel := "false"
	if escalated {
		escLabel = "true"
	}
	verificationDuration.WithLabelValues(verdict, escLabel).Observe(seconds)
	verificationTotal.WithLabelValues(verdict).Inc()
}

func RecordEscalation(outcome string) {
	escalationsTotal.WithLabelValues(outcome).Inc()
}

func RecordExternalResultCached() {
	externalResultsCached.Inc()
}

func RecordEvidenceRetrieved(count int) {
	evidenceRetrieved.Observe(float64(count))
}

func RecordEmbeddingCacheHit()  { embeddingCacheHits.Inc() }
func RecordEmbeddingCacheMiss() { embeddingCacheMisses.Inc() }

func RecordLLMTokens(prompt, completion int) {
	llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	llmTokens.WithLabelValues("completion").Add(float64(completion))
}

// MetricsHandler exposes the Prometheus scrape endpoint as a fiber handler.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
