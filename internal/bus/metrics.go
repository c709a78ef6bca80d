package bus

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors fed by fire(). A nil Registerer
// at construction still produces usable (if unexported) collectors, so
// callers that don't care about /metrics can pass nil.
type metrics struct {
	fired     *prometheus.CounterVec
	inhibited *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kenobot_bus_fired_total",
			Help: "Total signals fired on the bus, by type.",
		}, []string{"type"}),
		inhibited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kenobot_bus_inhibited_total",
			Help: "Total signals inhibited by middleware, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.fired, m.inhibited)
	}
	return m
}
