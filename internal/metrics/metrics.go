// Package metrics holds the backend's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kapeview"

var (
	stageDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800}

	// StageDuration times the backend ingestion stages.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time taken by an upload, extract or parse stage.",
		Buckets:   stageDurationBuckets,
	}, []string{"stage"})

	StageRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_runs_total",
		Help:      "Count of ingestion stage executions.",
	}, []string{"stage", "status"})

	ParserRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parser_runs_total",
		Help:      "Count of parser container runs per artifact kind.",
	}, []string{"kind", "status"})

	RecordsImportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_imported_total",
		Help:      "Rows loaded into the record store per dataset.",
	}, []string{"dataset"})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes of evidence archives received.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"method", "route", "code"})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Database snapshots taken.",
	}, []string{"status"})
)

// Status labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// StatusLabel maps a boolean outcome onto a status label.
func StatusLabel(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}
