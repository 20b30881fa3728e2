package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(coordinationRequestsTotal, retryQueueDepth) }

var (
	coordinationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordination_requests_total",
			Help: "Tracks dedup and lock calls against the coordination store.",
		},
		[]string{"op", "result"}, // e.g., op="dedup", result="duplicate"
	)

	retryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_retry_queue_depth",
			Help: "Retries waiting in the delayed queue, sampled by the retry relay.",
		},
	)
)

func IncCoordination(op, result string) {
	coordinationRequestsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func SetRetryQueueDepth(n int64) {
	retryQueueDepth.Set(float64(n))
}
