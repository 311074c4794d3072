package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the worker.
// Job metrics register against Registerer.
type Metrics struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	paymentsTotal       *prometheus.CounterVec
	resolutionMisses    *prometheus.CounterVec
	deferredResolutions *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "printhub_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "printhub_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "printhub_payments_recorded_total",
		Help: "Payment attempts by method and outcome.",
	}, []string{"method", "outcome"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "printhub_inventory_resolution_misses_total",
		Help: "Product references that matched no inventory item, by branch.",
	}, []string{"branch"})
	deferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "printhub_deferred_resolutions_total",
		Help: "Cheque, online and credit clearances by method and outcome.",
	}, []string{"method", "outcome"})
	registry.MustRegister(requests, duration, payments, misses, deferred)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		paymentsTotal:       payments,
		resolutionMisses:    misses,
		deferredResolutions: deferred,
	}
}

// Handler returns the http.Handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePayment counts one payment attempt.
func (m *Metrics) ObservePayment(method, outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveResolutionMiss counts one inventory resolution miss.
func (m *Metrics) ObserveResolutionMiss(branch string) {
	if m == nil {
		return
	}
	if branch == "" {
		branch = "unscoped"
	}
	m.resolutionMisses.WithLabelValues(branch).Inc()
}

// ObserveDeferredResolution counts one clearance decision.
func (m *Metrics) ObserveDeferredResolution(method, outcome string) {
	if m == nil {
		return
	}
	m.deferredResolutions.WithLabelValues(method, outcome).Inc()
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
