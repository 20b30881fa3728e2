package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobStorePoolConnections) }

// jobStorePoolConnections mirrors the pgxpool stats of the job record store.
var jobStorePoolConnections = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "job_store_pool_connections",
		Help: "Connections in the job record store pool, by state.",
	},
	[]string{"state"}, // total, idle, acquired
)

func SetDBPoolStats(total, idle, acquired int32) {
	jobStorePoolConnections.WithLabelValues("total").Set(float64(total))
	jobStorePoolConnections.WithLabelValues("idle").Set(float64(idle))
	jobStorePoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}
