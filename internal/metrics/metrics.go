package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ridgeback/jobqueue/internal/health"
)

var (
	// Worker loop (C6).

	ClaimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "job_claim_latency_seconds",
		Help:      "Time from job creation to a worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "job_dispatch_duration_seconds",
		Help:      "Duration of handler invocation, by outcome.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of jobs currently being dispatched by this process's workers.",
	})

	JobsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "jobs_dispatched_total",
		Help:      "Total jobs dispatched, by outcome (completed, retried, failed, unknown_class).",
	}, []string{"outcome"})

	// Scheduler tick (C5).

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Time taken for one scheduler tick (promote due delayed + spawn due recurring).",
		Buckets:   prometheus.DefBuckets,
	})

	DelayedPromotedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "delayed_promoted_total",
		Help:      "Total one-shot delayed jobs promoted from scheduled to pending.",
	})

	RecurringSpawnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "recurring_spawned_total",
		Help:      "Total instances spawned from recurring templates.",
	})

	// Admin sweeps (C7).

	StaleResetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "stale_reset_total",
		Help:      "Total processing rows returned to pending by ResetStale.",
	})

	CleanupDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "cleanup_deleted_total",
		Help:      "Total terminal rows deleted by Cleanup.",
	})

	// Worker lifecycle.

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	DBErrorBackoffSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "db_error_backoff_seconds",
		Help:      "Current db-error backoff duration applied by the worker loop.",
	})
)

func Register() {
	prometheus.MustRegister(
		ClaimLatency,
		DispatchDuration,
		JobsInFlight,
		JobsDispatchedTotal,
		TickDuration,
		DelayedPromotedTotal,
		RecurringSpawnedTotal,
		StaleResetTotal,
		CleanupDeletedTotal,
		WorkerStartTime,
		DBErrorBackoffSeconds,
	)
}

// NewServer serves /metrics plus the liveness/readiness probes backed by
// checker, on the same port the teacher dedicates to ambient observability.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, status int, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
