package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freezeyt_blog_requests_total",
			Help: "Number of blog requests by route and status code",
		},
		[]string{"route", "code"},
	)

	blogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freezeyt_blog_request_duration_seconds",
			Help:    "Blog request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	blogRenderCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freezeyt_blog_render_cache_total",
			Help: "Markdown render cache lookups by result",
		},
		[]string{"result"},
	)
)

func BlogRequest(route string, code int, startTime time.Time) {
	blogRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	blogRequestDuration.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
}

func BlogRenderCache(hit bool) {
	if hit {
		blogRenderCache.WithLabelValues("hit").Inc()
	} else {
		blogRenderCache.WithLabelValues("miss").Inc()
	}
}
