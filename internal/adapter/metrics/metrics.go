package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NotifierMetrics holds all Prometheus metrics for the notifier service.
type NotifierMetrics struct {
	IngestOutcomes      *prometheus.CounterVec
	NotifySendFailures  prometheus.Counter
	PersistenceFailures prometheus.Counter
	PollCycles          *prometheus.CounterVec
	WebhookDeliveries   *prometheus.CounterVec
	RecencyIndexSize    prometheus.Gauge
}

// New initializes and registers the Prometheus metrics.
func New() *NotifierMetrics {
	return &NotifierMetrics{
		IngestOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "open_notifier",
			Subsystem: "ingest",
			Name:      "outcomes_total",
			Help:      "Total number of ingested open events by outcome.",
		}, []string{"outcome"}), // outcome: notified, duplicate, error
		NotifySendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "open_notifier",
			Subsystem: "notify",
			Name:      "send_failures_total",
			Help:      "Total number of failed outbound notification sends.",
		}),
		PersistenceFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "open_notifier",
			Subsystem: "store",
			Name:      "persistence_failures_total",
			Help:      "Writes that failed after a notification was already sent. Alertable.",
		}),
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "open_notifier",
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by status.",
		}, []string{"status"}), // status: ok, error
		WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "open_notifier",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of push deliveries by result.",
		}, []string{"result"}), // result: accepted, rejected_signature, rejected_payload
		RecencyIndexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "open_notifier",
			Subsystem: "dedup",
			Name:      "recency_index_size",
			Help:      "Current number of entries in the recency index.",
		}),
	}
}
