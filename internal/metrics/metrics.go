package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "echoloop"

// Collector exposes Prometheus metrics for inbound HTTP requests and for the
// scheduled jobs. It uses a private registry.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	watchlistSize   prometheus.Gauge
	postsPublished  *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job invocations by outcome (success, error, skipped, panic).",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of scheduled job actions.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		watchlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchlist_size",
			Help:      "Posts awaiting their metrics check.",
		}),
		postsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "posts",
			Name:      "published_total",
			Help:      "Posts published to the platform by kind.",
		}, []string{"kind"}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.jobRuns,
		c.jobDuration,
		c.watchlistSize,
		c.postsPublished,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveJob records one job invocation.
func (c *Collector) ObserveJob(job, outcome string, d time.Duration) {
	c.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != "skipped" {
		c.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// SetWatchlistSize reports the current watchlist length.
func (c *Collector) SetWatchlistSize(n int) {
	c.watchlistSize.Set(float64(n))
}

// IncPublished counts a published post of the given kind.
func (c *Collector) IncPublished(kind string) {
	c.postsPublished.WithLabelValues(kind).Inc()
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
