package gate

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fastgeoapi"

// Metrics tracks gate decisions.
//
// Metrics:
//   - fastgeoapi_gate_decisions_total: decisions by scheme, outcome and reason
//   - fastgeoapi_jwks_refresh_total: JWKS fetches by result
//
// A nil *Metrics records nothing.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	jwksRefreshTotal *prometheus.CounterVec
}

// NewMetrics creates and registers gate metrics with the provided registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Total number of authentication gate decisions",
			},
			[]string{"scheme", "outcome", "reason"},
		),
		jwksRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jwks_refresh_total",
				Help:      "Total number of JWKS fetches",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.decisionsTotal, m.jwksRefreshTotal)
	return m
}

func (m *Metrics) decision(scheme string, d Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(scheme, d.Outcome.String(), string(d.Reason)).Inc()
}

func (m *Metrics) jwksRefresh(result string) {
	if m == nil {
		return
	}
	m.jwksRefreshTotal.WithLabelValues(result).Inc()
}
