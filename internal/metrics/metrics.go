// Package metrics holds the process-wide Prometheus collectors
// instrumenting spec §5's concurrency/back-pressure model, exposed by
// cmd/helixfactory's /metrics endpoint alongside /health,
// /api/memory/stats and /api/tasks/run.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BuildStagesTotal counts build pipeline outcomes by stage ("pipeline",
	// since build.Outcome doesn't break individual compile/package/verify
	// results out) and result (build.Outcome.Source values "built"/
	// "repaired" on success, "failed" on a non-Done outcome).
	BuildStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixfactory_build_stage_total",
			Help: "Total build pipeline outcomes by stage and result",
		},
		[]string{"stage", "result"},
	)

	// ConcurrentBuilds tracks how many build.Pipeline.Run calls are
	// currently holding a build slot, against the configured cap.
	ConcurrentBuilds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helixfactory_concurrent_builds",
			Help: "Number of build pipeline runs currently in flight",
		},
	)

	// SearchLatencySeconds times unified registry searches.
	SearchLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helixfactory_search_latency_seconds",
			Help:    "Latency of unified registry searches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LifecyclePassesTotal counts lifecycle passes by trigger
	// ("interval", "manual") and outcome ("ok", "failed").
	LifecyclePassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixfactory_lifecycle_passes_total",
			Help: "Total memory lifecycle passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(BuildStagesTotal, ConcurrentBuilds, SearchLatencySeconds, LifecyclePassesTotal)
}
