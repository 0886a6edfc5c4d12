// Package metrics registers the Prometheus collectors the status server
// exposes at /metrics, tracking cycle outcomes, poll cadence, and
// download progress across the agent's lifetime.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CycleOutcomesTotal counts every Probe call by its terminal
	// OutcomeCode string (e.g. "Ok", "DownloadError").
	CycleOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_cycle_outcomes_total",
			Help: "Total number of update cycles by outcome.",
		},
		[]string{"outcome"},
	)

	// PollIntervalSeconds reports the interval the next cycle is
	// scheduled after, as last set by a poll response.
	PollIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_poll_interval_seconds",
			Help: "Current poll interval in seconds.",
		},
	)

	// DownloadProgressPercent reports the floor completion percentage of
	// the artifact currently (or most recently) being downloaded.
	DownloadProgressPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_download_progress_percent",
			Help: "Completion percentage of the in-progress artifact download.",
		},
	)

	// CycleDurationSeconds observes the wall-clock time of each Probe call.
	CycleDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_cycle_duration_seconds",
			Help:    "Duration of an update cycle, by outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CycleOutcomesTotal)
	prometheus.MustRegister(PollIntervalSeconds)
	prometheus.MustRegister(DownloadProgressPercent)
	prometheus.MustRegister(CycleDurationSeconds)
}
