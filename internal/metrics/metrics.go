// Package metrics holds the Prometheus instruments of the labelling service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	formSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evallabel_form_submissions_total",
			Help: "Total number of accepted labelling form submissions",
		},
		[]string{"form"},
	)

	snapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evallabel_snapshot_saves_total",
			Help: "Total number of results snapshot uploads by outcome",
		},
		[]string{"outcome"},
	)

	staleDeletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evallabel_stale_snapshots_deleted_total",
			Help: "Total number of superseded snapshots removed after a save",
		},
	)

	storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evallabel_storage_errors_total",
			Help: "Total number of failed blob storage operations",
		},
		[]string{"op"},
	)

	storageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evallabel_storage_latency_seconds",
			Help:    "Latency of blob storage operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	excludedRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evallabel_low_variance_exclusions_total",
			Help: "Total number of per-user runs excluded from analysis for low score variance",
		},
	)
)

// FormSubmitted counts an accepted submission of the named form.
func FormSubmitted(form string) {
	formSubmissions.WithLabelValues(form).Inc()
}

// SnapshotSaved counts a snapshot upload.
func SnapshotSaved(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	snapshotSaves.WithLabelValues(outcome).Inc()
}

// StaleDeleted counts removed superseded snapshots.
func StaleDeleted(n int) {
	staleDeletions.Add(float64(n))
}

// StorageOp records the latency and outcome of a storage operation.
func StorageOp(op string, elapsed time.Duration, err error) {
	storageLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		storageErrors.WithLabelValues(op).Inc()
	}
}

// RunExcluded counts a run dropped by the low variance check.
func RunExcluded() {
	excludedRuns.Inc()
}
