package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	freezeFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freezeyt_freeze_failed_total",
			Help: "Number of times freezing extra files has failed",
		},
		[]string{"target", "error_type"},
	)

	freezeCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freezeyt_freeze_count_total",
			Help: "Total number of completed freezes",
		},
	)

	freezeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freezeyt_freeze_duration_seconds",
			Help:    "Freeze duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"target"},
	)

	filesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freezeyt_files_written_total",
			Help: "Number of files written to the output, by directive kind",
		},
		[]string{"kind"},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "freezeyt_bytes_written_total",
			Help: "Number of bytes written to the output",
		},
	)
)

func FreezeSucceeded(target string, startTime time.Time) {
	freezeCount.Inc()
	freezeDuration.WithLabelValues(target).Observe(time.Since(startTime).Seconds())
}

func FreezeFailed(target, errorType string) {
	freezeFailed.WithLabelValues(target, errorType).Inc()
}

func FileWritten(kind string, n int64) {
	filesWritten.WithLabelValues(kind).Inc()
	bytesWritten.Add(float64(n))
}
