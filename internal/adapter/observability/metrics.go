package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCompleted counts jobs that reached a successful terminal state.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_completed_total",
		Help: "Jobs completed successfully, by queue.",
	}, []string{"queue"})

	// JobsRetried counts jobs pushed back to a retry queue.
	JobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_retried_total",
		Help: "Jobs re-enqueued for retry, by queue and reason.",
	}, []string{"queue", "reason"})

	// JobsDeadLettered counts terminal DLQ routings.
	JobsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_dead_lettered_total",
		Help: "Jobs routed to a dead-letter queue, by queue and reason.",
	}, []string{"queue", "reason"})

	// FetchesTotal counts direct fetch outcomes.
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_fetches_total",
		Help: "Fetch attempts by outcome (ok, retryable, nonretryable, headless_ok, headless_miss).",
	}, []string{"outcome"})

	// LLMAttempts counts model calls by result class.
	LLMAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_llm_attempts_total",
		Help: "LLM call attempts by result (ok, timeout, json_parse_failed, llm_failed).",
	}, []string{"result"})
)
