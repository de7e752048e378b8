// Package metrics exposes Prometheus collectors for fetch, enforcement, sync
// and HTTP traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "bizkit"

// Metrics implements the recorder interfaces of fetch, enforce and syncer.
type Metrics struct {
	fetchCalls   *prometheus.CounterVec
	fetchRetries prometheus.Counter
	fetchShared  prometheus.Counter

	decisions *prometheus.CounterVec
	syncs     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Registering twice on the same
// registerer panics, as with promauto.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		fetchCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_calls_total",
				Help:      "Total number of fetch calls by outcome",
			},
			[]string{"outcome"},
		),
		fetchRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Total number of fetch retry attempts",
			},
		),
		fetchShared: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_shared_total",
				Help:      "Total number of calls that joined an in-flight fetch",
			},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_decisions_total",
				Help:      "Total number of enforcement decisions",
			},
			[]string{"action", "reason", "allowed", "degraded"},
		),
		syncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_syncs_total",
				Help:      "Total number of subscription syncs by outcome",
			},
			[]string{"outcome"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) FetchCompleted(outcome string) {
	if m == nil {
		return
	}
	m.fetchCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FetchRetried() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

func (m *Metrics) FetchShared() {
	if m == nil {
		return
	}
	m.fetchShared.Inc()
}

func (m *Metrics) DecisionMade(action, reason string, allowed, degraded bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, reason, strconv.FormatBool(allowed), strconv.FormatBool(degraded)).Inc()
}

func (m *Metrics) SyncCompleted(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request. route should be the route pattern,
// not the raw path, to keep cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
