package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobTransitionsTotal, deliveriesTotal,
		retriesScheduledTotal, retriesRelayedTotal, notificationsTotal, jobsExpiredTotal)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of job deliveries handled, labeled by outcome.",
		},
		[]string{"outcome"}, // 'completed', 'skipped', 'retried', 'failed', 'duplicate', 'locked'
	)

	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_transitions_total",
			Help: "Committed job status transitions.",
		},
		[]string{"from", "to"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_deliveries_total",
			Help: "Broker deliveries by final acknowledgement decision.",
		},
		[]string{"decision"}, // 'ack', 'requeue', 'reject'
	)

	retriesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_retries_scheduled_total",
			Help: "Retries placed on the delayed retry queue.",
		},
	)

	retriesRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_retries_relayed_total",
			Help: "Due retries moved from the delayed queue back to the job queue.",
		},
		[]string{"status"}, // 'published', 'error'
	)

	jobsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_expired_total",
			Help: "Completed jobs moved to EXPIRED by the retention sweeper.",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Terminal-state notifications by outcome and publish status.",
		},
		[]string{"outcome", "status"},
	)
)

func IncJobOutcome(outcome string) {
	jobsProcessedTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncTransition(from, to string) {
	jobTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncDelivery(decision string) {
	deliveriesTotal.WithLabelValues(norm(decision)).Inc()
}

func IncRetryScheduled() { retriesScheduledTotal.Inc() }

func IncRetryRelayed(status string) {
	retriesRelayedTotal.WithLabelValues(norm(status)).Inc()
}

func IncNotification(outcome, status string) {
	notificationsTotal.WithLabelValues(norm(outcome), norm(status)).Inc()
}

func IncJobExpired(n int) {
	if n > 0 {
		jobsExpiredTotal.Add(float64(n))
	}
}
