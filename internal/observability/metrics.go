package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished generation jobs.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "jobs_total",
			Help:      "Total number of generation jobs by origin and status",
		},
		[]string{"origin", "status"},
	)

	// JobDuration measures job duration.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopilot",
			Name:      "job_duration_seconds",
			Help:      "Duration of generation jobs in seconds",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
		[]string{"origin"},
	)

	// SpendTotal accumulates recorded spend in local currency.
	SpendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "spend_total",
			Help:      "Recorded API spend in local currency",
		},
		[]string{"service"},
	)

	// BatchesTotal counts batches by how they ended.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "batches_total",
			Help:      "Total number of batches by stop reason",
		},
		[]string{"stop_reason"},
	)

	// TickErrorsTotal counts errors and recovered panics in the tick handler.
	TickErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Name:      "tick_errors_total",
			Help:      "Total number of errors raised while handling timer ticks",
		},
	)
)

// RecordJob records a finished job.
func RecordJob(origin, status string, seconds float64) {
	JobsTotal.WithLabelValues(origin, status).Inc()
	JobDuration.WithLabelValues(origin).Observe(seconds)
}

// RecordSpend records spend for a service.
func RecordSpend(service string, amount float64) {
	SpendTotal.WithLabelValues(service).Add(amount)
}

// RecordBatch records a finished batch.
func RecordBatch(stopReason string) {
	BatchesTotal.WithLabelValues(stopReason).Inc()
}

// RecordTickError records a tick handler failure.
func RecordTickError() {
	TickErrorsTotal.Inc()
}
