package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "rewards"
	metricsSubsystem = "http"
	// unmatchedRoute labels requests no route matched, keeping scanners from
	// minting one series per scanned URL.
	unmatchedRoute = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency. Streaming ingestions last as long as the run.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "response_size_bytes",
		Help:      "HTTP response sizes, including report downloads.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
	}, []string{"method", "route"})

	// uploadSize only sees multipart bodies, i.e. coupon source files.
	uploadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "upload_size_bytes",
		Help:      "Declared size of multipart uploads.",
		Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 8), // 1KiB..16MiB
	})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, uploadSize, rateLimited)
}

// Metrics instruments every request. Pair it with a promhttp handler on
// /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := metricRoute(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
		if n := c.Request.ContentLength; n > 0 && isMultipart(c) {
			uploadSize.Observe(float64(n))
		}
	}
}

func metricRoute(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}
