package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "review_insights"

// Registry wraps a Prometheus registry. Constructors are idempotent: asking for
// an already registered name returns the existing collector, so components that
// are rebuilt on config reload do not panic.
type Registry struct {
	reg *prometheus.Registry
}

// Default is the process-wide registry served on the admin port.
var Default = NewRegistry()

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg}
}

// Gatherer exposes the underlying registry (tests use it to read values).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	return register(r.reg, c)
}

func (r *Registry) Gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	return register(r.reg, g)
}

func (r *Registry) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
	return register(r.reg, h)
}

func (r *Registry) CounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	return register(r.reg, c)
}

func (r *Registry) HistogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	return register(r.reg, h)
}

func register[T prometheus.Collector](reg *prometheus.Registry, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Handler serves the default registry.
func Handler() http.Handler { return Default.Handler() }

// Service-wide collectors.
var (
	HTTPRequests = Default.CounterVec("http_requests_total", "HTTP requests.", "route", "method", "status")
	HTTPLatency  = Default.HistogramVec("http_request_duration_seconds", "HTTP request duration seconds.",
		prometheus.DefBuckets, "route", "method")

	UpstreamRequests = Default.CounterVec("upstream_requests_total", "Outbound requests.", "system", "operation", "status")
	UpstreamLatency  = Default.HistogramVec("upstream_request_duration_seconds", "Outbound request duration seconds.",
		[]float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80}, "system", "operation")

	Batches = Default.CounterVec("analysis_batches_total", "Analysis batches by final state.", "state")
	Retries = Default.CounterVec("analysis_retries_total", "Analysis request retries by reason.", "reason")
	Reviews = Default.CounterVec("analysis_reviews_total", "Reviews by analysis outcome.", "outcome")
	Tokens  = Default.CounterVec("analysis_tokens_total", "Model tokens used.", "kind")

	PacingWait = Default.Histogram("analysis_pacing_wait_seconds", "Time spent waiting on rate limiters before a request.",
		[]float64{0, .01, .05, .1, .5, 1, 5, 15, 60})

	JobsInFlight = Default.Gauge("background_jobs_in_flight", "Background jobs currently running.")

	CacheEvents = Default.CounterVec("cache_events_total", "Cache hits/misses/sets.", "cache", "event")
)

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveUpstream records one outbound call; status 0 means a transport error.
func ObserveUpstream(system, op string, status int, dur time.Duration) {
	UpstreamRequests.WithLabelValues(system, op, strconv.Itoa(status)).Inc()
	UpstreamLatency.WithLabelValues(system, op).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set
	CacheEvents.WithLabelValues(cache, event).Inc()
}
