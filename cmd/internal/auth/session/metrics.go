package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes registry activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	active  prometheus.Gauge
	created prometheus.Counter
	ended   *prometheus.CounterVec
	lookups *prometheus.CounterVec
}

// NewMetrics builds the session collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libra",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in the registry.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Sessions removed from the registry, by reason.",
		}, []string{"reason"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libra",
			Subsystem: "session",
			Name:      "lookups_total",
			Help:      "Session lookups, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.created, m.ended, m.lookups)
	}
	return m
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Metrics) incCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) addEnded(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ended.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) incLookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}
