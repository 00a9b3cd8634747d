package loyaltysdk

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts client activity. A nil *Metrics records nothing.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Queued    prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg
// when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound API requests by method and status class.",
		}, []string{"method", "status"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "client",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		Queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "client",
			Name:      "queued_requests_total",
			Help:      "Requests suspended behind an in-flight token refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Refreshes, m.Queued)
	}
	return m
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.Requests.WithLabelValues(method, class).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeQueued() {
	if m == nil {
		return
	}
	m.Queued.Inc()
}
