// Package metrics exposes dispatcher and HTTP instrumentation to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/taskrelay/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskrelay"

// Metrics contains the Prometheus collectors of one process. Each instance
// owns its registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatcher metrics
	WorkSubmittedTotal *prometheus.CounterVec
	WorkStartedTotal   *prometheus.CounterVec
	WorkFinishedTotal  *prometheus.CounterVec
	WorkDuration       *prometheus.HistogramVec
	WorkCancelledTotal *prometheus.CounterVec
	LiveWork           prometheus.Gauge
	CallbackFailures   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics, plus the Go runtime and process
// collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	buckets := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300}

	return &Metrics{
		registry: registry,

		WorkSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_submitted_total",
				Help:      "Total number of units submitted",
			},
			[]string{"verb", "task_type"},
		),
		WorkStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_started_total",
				Help:      "Total number of units that started executing",
			},
			[]string{"task_type"},
		),
		WorkFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_finished_total",
				Help:      "Total number of units that terminated, by terminal kind",
			},
			[]string{"task_type", "kind"},
		),
		WorkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "work_duration_seconds",
				Help:      "Time units spent executing",
				Buckets:   buckets,
			},
			[]string{"task_type", "kind"},
		),
		WorkCancelledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_cancelled_total",
				Help:      "Total number of units affected by cancel operations",
			},
			[]string{"op", "result"},
		),
		LiveWork: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_work",
				Help:      "Units currently queued or running",
			},
		),
		CallbackFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_failures_total",
				Help:      "Total number of handler invocations that failed",
			},
			[]string{"kind"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time spent serving HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ task.Observer = (*Metrics)(nil)

// WorkSubmitted implements task.Observer.
func (m *Metrics) WorkSubmitted(verb, taskType string) {
	m.WorkSubmittedTotal.WithLabelValues(verb, taskType).Inc()
}

// WorkStarted implements task.Observer.
func (m *Metrics) WorkStarted(taskType string) {
	m.WorkStartedTotal.WithLabelValues(taskType).Inc()
}

// WorkFinished implements task.Observer.
func (m *Metrics) WorkFinished(taskType, kind string, elapsed time.Duration) {
	m.WorkFinishedTotal.WithLabelValues(taskType, kind).Inc()
	m.WorkDuration.WithLabelValues(taskType, kind).Observe(elapsed.Seconds())
}

// WorkCancelled implements task.Observer.
func (m *Metrics) WorkCancelled(op string, result task.CancelResult, n int) {
	if n <= 0 {
		return
	}
	m.WorkCancelledTotal.WithLabelValues(op, result.String()).Add(float64(n))
}

// RegistrySize implements task.Observer.
func (m *Metrics) RegistrySize(n int) {
	m.LiveWork.Set(float64(n))
}

// CallbackFailed implements task.Observer.
func (m *Metrics) CallbackFailed(kind string) {
	m.CallbackFailures.WithLabelValues(kind).Inc()
}
