package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	BatchesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcsync_batches_processed_total",
			Help: "Total number of batches popped from the queue by outcome",
		},
		[]string{"outcome"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcsync_batch_duration_seconds",
			Help:    "Time taken to process one batch",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	QueuePopErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcsync_queue_pop_errors_total",
			Help: "Total number of failed queue pops",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcsync_queue_depth",
			Help: "Pending batches in the queue at the last health check",
		},
	)

	// Unit metrics
	UnitsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcsync_units_processed_total",
			Help: "Total number of upload units processed by upload type and result",
		},
		[]string{"upload_type", "result"},
	)

	UnitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcsync_unit_retries_total",
			Help: "Total number of unit remote phases retried after an integration fault",
		},
	)

	// Portal metrics
	SessionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcsync_session_attempts_total",
			Help: "Total number of portal session attempts by result",
		},
		[]string{"result"},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcsync_session_active",
			Help: "Whether an authenticated portal session is open (1 = open, 0 = none)",
		},
	)

	// Notification metrics
	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcsync_emails_sent_total",
			Help: "Total number of notification emails by kind and result",
		},
		[]string{"kind", "result"},
	)

	SystemErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcsync_system_errors_total",
			Help: "Total number of system errors recorded",
		},
	)
)

func init() {
	prometheus.MustRegister(BatchesProcessed)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(QueuePopErrors)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(UnitsProcessed)
	prometheus.MustRegister(UnitRetries)
	prometheus.MustRegister(SessionAttempts)
	prometheus.MustRegister(SessionActive)
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(SystemErrors)
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
