package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the request metrics exported at /metrics.
type Collector struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector backed by its own registry so that
// multiple apps in one process never collide on metric names.
func NewCollector() *Collector {
	labelNames := []string{"entity", "method", "status"}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "strata",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			labelNames,
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "strata",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			labelNames,
		),
	}

	c.registry.MustRegister(c.requestsTotal, c.requestDuration)

	return c
}

// Middleware returns middleware that records every request in the collector.
func (c *Collector) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			labels := []string{entityLabel(r.URL.Path), r.Method, strconv.Itoa(rw.statusCode)}
			c.requestsTotal.WithLabelValues(labels...).Inc()
			c.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// entityLabel reduces a request path to its first segment. Every route an
// entity owns lives under its prefix, so the segment is the entity prefix
// and the label cardinality stays bounded no matter how deep the route is.
func entityLabel(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}
