package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tasker"

// Metrics owns its registry; nothing is registered on the global default.
type Metrics struct {
	registry *prometheus.Registry

	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	keyValidations  *prometheus.CounterVec
	oauthCallbacks  *prometheus.CounterVec
	detachedFailure *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Password login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		keyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_key",
			Name:      "validations_total",
			Help:      "API key validations by result.",
		}, []string{"result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "callbacks_total",
			Help:      "Event Horizon callbacks by result.",
		}, []string{"result"}),
		detachedFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detached_task",
			Name:      "failures_total",
			Help:      "Best-effort background tasks that failed.",
		}, []string{"task"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.refreshes,
		m.keyValidations,
		m.oauthCallbacks,
		m.detachedFailure,
	)
	return m
}

func (m *Metrics) Login(result string)         { m.logins.WithLabelValues(result).Inc() }
func (m *Metrics) Refresh(result string)       { m.refreshes.WithLabelValues(result).Inc() }
func (m *Metrics) KeyValidation(result string) { m.keyValidations.WithLabelValues(result).Inc() }
func (m *Metrics) OAuthCallback(result string) { m.oauthCallbacks.WithLabelValues(result).Inc() }

func (m *Metrics) DetachedTaskFailed(task string) {
	m.detachedFailure.WithLabelValues(task).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
