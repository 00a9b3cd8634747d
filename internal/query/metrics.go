package query

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache activity. A nil *Metrics records nothing.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Pruned        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "query",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by resource and result (hit or miss).",
		}, []string{"resource", "result"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "query",
			Name:      "cache_invalidations_total",
			Help:      "Resource invalidations triggered by mutations.",
		}, []string{"resource"}),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "query",
			Name:      "cache_pruned_total",
			Help:      "Entries removed by the cache janitor.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Lookups, m.Invalidations, m.Pruned)
	}
	return m
}

func (m *Metrics) observeLookup(r Resource, result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(string(r), result).Inc()
}

func (m *Metrics) observeInvalidation(resources []Resource) {
	if m == nil {
		return
	}
	for _, r := range resources {
		m.Invalidations.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) observePruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Pruned.Add(float64(n))
}
