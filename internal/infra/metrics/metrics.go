package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(stageDurationSeconds) }

var stageDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of each processing stage in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	},
	[]string{"stage", "success"},
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, success bool, d time.Duration) {
	stageDurationSeconds.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(d.Seconds())
}
