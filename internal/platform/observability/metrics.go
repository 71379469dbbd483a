package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the synchronizer's collectors. A nil *Metrics is valid and records nothing,
// so libraries can run without a registry.
type Metrics struct {
	syncTotal      *prometheus.CounterVec
	syncFailures   *prometheus.CounterVec
	listenerPanics prometheus.Counter
	listeners      prometheus.Gauge
	fetchDuration  *prometheus.HistogramVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_sync_total",
				Help: "Profile synchronizer operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		syncFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_sync_failures_total",
				Help: "Suppressed profile synchronizer failures by error kind",
			},
			[]string{"op", "kind"},
		),
		listenerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "profile_listener_panics_total",
				Help: "Listener invocations that panicked during fan-out",
			},
		),
		listeners: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "profile_listeners",
				Help: "Currently registered profile listeners",
			},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profile_fetch_duration_seconds",
				Help:    "Duration of remote profile fetches",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"result"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "Local bridge request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.syncTotal, m.syncFailures, m.listenerPanics, m.listeners, m.fetchDuration, m.httpDuration)
	}
	return m
}

func (m *Metrics) SyncOutcome(op, outcome string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) SyncFailure(op, kind string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) ListenerPanic() {
	if m == nil {
		return
	}
	m.listenerPanics.Inc()
}

func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
