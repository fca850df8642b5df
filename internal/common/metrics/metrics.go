// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	RankingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_attempts_total",
			Help: "Provider attempts by attempt state and result",
		},
		[]string{"state", "result"},
	)

	RankingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_failures_total",
			Help: "Classified provider attempt failures",
		},
		[]string{"kind"},
	)

	RankingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_outcomes_total",
			Help: "Ranking outcomes by source",
		},
		[]string{"source"},
	)

	RankingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_duration_seconds",
			Help:    "End-to-end ranking latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"source"},
	)

	RankingParseStage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_parse_stage_total",
			Help: "Leniency ladder stage that produced a parse result",
		},
		[]string{"stage"},
	)

	RankingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_cache_total",
			Help: "Outcome cache lookups by result",
		},
		[]string{"result"},
	)

	RankingCacheWritesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_cache_writes_dropped_total",
			Help: "Cache writes dropped because the write queue was full or closed",
		},
	)
)
