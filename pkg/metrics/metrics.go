// Package metrics provides Prometheus instrumentation for export runs.
// Metrics are registered on the default registry; batch deployments that
// cannot scrape a short-lived process can read the same numbers from the
// run-summary log line instead.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts rows fetched from the source per run outcome.
	RowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventrelay_rows_read_total",
			Help: "Total number of rows fetched from the source",
		},
	)

	// RowsSkipped counts rows dropped by the transformer, by reason.
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventrelay_rows_skipped_total",
			Help: "Total number of rows dropped during transformation",
		},
		[]string{"reason"},
	)

	// ChunksDelivered counts chunks the sink accepted.
	ChunksDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventrelay_chunks_delivered_total",
			Help: "Total number of chunks accepted by the sink",
		},
	)

	// DeliveryFailures counts chunk deliveries that failed terminally.
	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventrelay_delivery_failures_total",
			Help: "Total number of terminally failed chunk deliveries",
		},
	)

	// Runs counts completed runs by final state.
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventrelay_runs_total",
			Help: "Total number of export runs by outcome",
		},
		[]string{"outcome"},
	)

	// Watermark exposes the last persisted watermark timestamp.
	Watermark = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventrelay_watermark_timestamp",
			Help: "Epoch timestamp of the last successfully exported row",
		},
	)

	// RunDuration tracks end-to-end run duration.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventrelay_run_duration_seconds",
			Help:    "End-to-end export run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
