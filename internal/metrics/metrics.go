package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jrsteele09/constructos-gateway/authstate"
	"github.com/jrsteele09/constructos-gateway/guard"
	"github.com/jrsteele09/constructos-gateway/token"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	AuthResolutions   *prometheus.CounterVec
	TokenAcquisitions *prometheus.CounterVec
	GuardDecisions    *prometheus.CounterVec
	BackendLatency    *prometheus.HistogramVec
	BackendErrors     *prometheus.CounterVec
	LoginAttempts     *prometheus.CounterVec
	GatewaySessions   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AuthResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constructos_auth_resolutions_total",
				Help: "Total number of auth state resolutions by source",
			},
			[]string{"source"},
		),
		TokenAcquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constructos_token_acquisitions_total",
				Help: "Total number of bearer token acquisitions by outcome",
			},
			[]string{"outcome"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constructos_guard_decisions_total",
				Help: "Total number of route guard decisions by outcome",
			},
			[]string{"outcome"},
		),
		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "constructos_backend_request_duration_seconds",
				Help:    "Backend auth API call latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
			[]string{"operation"},
		),
		BackendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constructos_backend_errors_total",
				Help: "Total number of failed backend auth API calls",
			},
			[]string{"operation"},
		),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constructos_login_attempts_total",
				Help: "Total number of login attempts by method",
			},
			[]string{"method", "success"},
		),
		GatewaySessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "constructos_gateway_sessions",
				Help: "Number of live gateway sessions",
			},
		),
	}
}

func (m *Metrics) RecordResolution(kind authstate.SourceKind) {
	m.AuthResolutions.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordTokenOutcome(o token.Outcome) {
	m.TokenAcquisitions.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) RecordGuardDecision(o guard.Outcome) {
	m.GuardDecisions.WithLabelValues(string(o)).Inc()
}

// RecordBackendCall has the signature of backend.Observer.
func (m *Metrics) RecordBackendCall(operation string, elapsed time.Duration, err error) {
	m.BackendLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err != nil {
		m.BackendErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordLogin(method string, success bool) {
	m.LoginAttempts.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}
