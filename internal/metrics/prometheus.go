package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adalign/backend/pkg/circuitbreaker"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_evaluations_total",
			Help: "Evaluation requests by outcome (success, fallback, quota_exceeded, input_error)",
		},
		[]string{"outcome"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adalign_evaluation_duration_seconds",
			Help:    "End-to-end evaluation duration in seconds",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		},
		[]string{"outcome"},
	)

	CaptureAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_capture_attempts_total",
			Help: "Screenshot and frame capture attempts",
		},
		[]string{"provider", "method", "result"},
	)

	CaptureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adalign_capture_duration_seconds",
			Help:    "Capture provider latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 75},
		},
		[]string{"provider", "method"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adalign_llm_request_duration_seconds",
			Help:    "Vision model request duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"provider", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_llm_tokens_used",
			Help: "Total vision model tokens used",
		},
		[]string{"model", "type"},
	)

	QuotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_quota_decisions_total",
			Help: "Monthly quota decisions by identity kind",
		},
		[]string{"kind", "decision"},
	)

	BurstRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adalign_burst_rejected_total",
			Help: "Requests rejected by the per-address burst guard",
		},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_persistence_failures_total",
			Help: "Best-effort writes that failed",
		},
		[]string{"operation"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ScoringRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adalign_scoring_runs_total",
			Help: "Micro-factor scoring runs by platform",
		},
		[]string{"platform"},
	)

	ScoringOverall = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adalign_scoring_overall_score",
			Help:    "Distribution of micro-factor overall scores",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adalign_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(EvaluationsTotal)
		prometheus.MustRegister(EvaluationDuration)
		prometheus.MustRegister(CaptureAttempts)
		prometheus.MustRegister(CaptureDuration)
		prometheus.MustRegister(LLMRequestDuration)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(QuotaDecisions)
		prometheus.MustRegister(BurstRejected)
		prometheus.MustRegister(PersistenceFailures)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(ScoringRuns)
		prometheus.MustRegister(ScoringOverall)
		prometheus.MustRegister(CircuitBreakerState)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// ObserveBreaker is a circuitbreaker.Config.OnStateChange hook.
func ObserveBreaker(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}
