// Package metrics exposes Prometheus metrics for scheduled replication.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch metrics
	RunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zfsync_runs_total",
			Help: "Total number of completed replication batch runs",
		},
	)

	RunFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zfsync_run_failures_total",
			Help: "Total number of batch runs with at least one failed dataset",
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zfsync_run_duration_seconds",
			Help:    "Duration of replication batch runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zfsync_last_run_timestamp_seconds",
			Help: "Unix time of the last completed batch run",
		},
	)

	LastRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zfsync_last_run_success",
			Help: "Whether the last batch run fully succeeded (1 = yes, 0 = no)",
		},
	)

	// Per-dataset metrics
	PairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfsync_pairs_total",
			Help: "Total number of replicated dataset pairs by result",
		},
		[]string{"result"},
	)

	PairFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfsync_pair_failures_total",
			Help: "Total number of failed dataset pairs by pipeline step",
		},
		[]string{"step"},
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfsync_transfers_total",
			Help: "Total number of completed transfers by stream kind",
		},
		[]string{"kind"},
	)

	SnapshotsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfsync_snapshots_pruned_total",
			Help: "Total number of snapshots destroyed by retention, by side",
		},
		[]string{"side"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunFailuresTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(LastRunTimestamp)
	prometheus.MustRegister(LastRunSuccess)
	prometheus.MustRegister(PairsTotal)
	prometheus.MustRegister(PairFailuresTotal)
	prometheus.MustRegister(TransfersTotal)
	prometheus.MustRegister(SnapshotsPrunedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
