// Package metrics exposes the pipeline's Prometheus instrumentation:
// per-stage queue depth, upload retry counts, and staged files applied
// to the warehouse.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdc_pipeline_queue_depth",
		Help: "Number of items currently buffered between pipeline stages.",
	}, []string{"stage"})

	UploadRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdc_pipeline_upload_retries_total",
		Help: "Number of retried S3 upload attempts, by table.",
	}, []string{"table"})

	RowsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cdc_pipeline_rows_applied_total",
		Help: "Number of staged files applied to the warehouse (skipped ones included), by table and operation.",
	}, []string{"table", "kind"})

	WalEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cdc_pipeline_wal_epoch",
		Help: "Current WAL epoch number being aggregated.",
	})
)

// Register adds every collector to the given registry. Called once at
// startup with prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(QueueDepth, UploadRetries, RowsApplied, WalEpoch)
}
