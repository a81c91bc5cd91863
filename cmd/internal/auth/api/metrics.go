package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts auth API outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	passwordOps *prometheus.CounterVec
	wsActive    prometheus.Gauge
}

// NewMetrics builds the auth API collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
		passwordOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "auth",
			Name:      "password_operations_total",
			Help:      "Password changes and resets, by operation and result.",
		}, []string{"op", "result"}),
		wsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libra",
			Subsystem: "auth",
			Name:      "keepalive_connections",
			Help:      "Open session keepalive sockets.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.passwordOps, m.wsActive)
	}
	return m
}

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) password(op, result string) {
	if m == nil {
		return
	}
	m.passwordOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) wsDelta(d float64) {
	if m == nil {
		return
	}
	m.wsActive.Add(d)
}
