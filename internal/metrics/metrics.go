package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_consumed_total",
			Help: "Total number of messages consumed from the broker",
		},
		[]string{"stage", "routing_key"},
	)

	messagesForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_forwarded_total",
			Help: "Total number of valid messages forwarded downstream",
		},
		[]string{"stage"},
	)

	dlqMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dlq_messages_total",
			Help: "Total number of messages routed to the dead-letter exchange",
		},
		[]string{"stage", "reason"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retry_attempts_total",
			Help: "Total number of transient-error retry attempts",
		},
		[]string{"stage"},
	)

	dedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_dedup_hits_total",
			Help: "Total number of duplicate events dropped within a window",
		},
	)

	windowsFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_windows_flushed_total",
			Help: "Total number of aggregation windows closed and published",
		},
	)

	windowEventsFlushed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_window_events",
			Help:    "Events counted per flushed window",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	rowsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_audit_rows_stored_total",
			Help: "Total number of rows committed by the audit store",
		},
		[]string{"table"},
	)

	requeuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requeues_total",
			Help: "Total number of deliveries negatively acknowledged with requeue",
		},
		[]string{"stage", "reason"},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_message_processing_duration_seconds",
			Help:    "Message processing duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)
)

func RecordMessageConsumed(stage, routingKey string) {
	messagesConsumedTotal.WithLabelValues(stage, routingKey).Inc()
}

func RecordMessageForwarded(stage string) {
	messagesForwardedTotal.WithLabelValues(stage).Inc()
}

func RecordDLQMessage(stage, reason string) {
	dlqMessagesTotal.WithLabelValues(stage, reason).Inc()
}

func RecordRetryAttempt(stage string) {
	retryAttemptsTotal.WithLabelValues(stage).Inc()
}

func RecordDedupHit() {
	dedupHitsTotal.Inc()
}

func RecordWindowFlushed(events int) {
	windowsFlushedTotal.Inc()
	windowEventsFlushed.Observe(float64(events))
}

func RecordRowStored(table string) {
	rowsStoredTotal.WithLabelValues(table).Inc()
}

func RecordRequeue(stage, reason string) {
	requeuesTotal.WithLabelValues(stage, reason).Inc()
}

func RecordProcessing(stage string, d time.Duration) {
	processingDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
