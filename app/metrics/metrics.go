package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics registers its collectors on a private registry, served by Handler.
type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	inquiries       *prometheus.CounterVec
	verifyRejected  *prometheus.CounterVec
	eventFailures   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_session_transitions_total",
			Help: "Committed session status transitions",
		}, []string{"psp", "from", "to"}),
		gatewayCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_gateway_calls_total",
			Help: "Gateway round trips by operation and result",
		}, []string{"psp", "operation", "result"}),
		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transactions_gateway_call_duration_seconds",
			Help:    "Gateway round trip duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"psp", "operation"}),
		inquiries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_inquiries_resolved_total",
			Help: "Resolved inquiries by status",
		}, []string{"psp", "status"}),
		verifyRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_verify_rejected_total",
			Help: "Verify calls rejected before reaching the gateway",
		}, []string{"psp", "reason"}),
		eventFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_event_publish_failures_total",
			Help: "Lifecycle events the sink failed to deliver",
		}, []string{"event"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTransition(psp, from, to string) {
	m.transitions.WithLabelValues(psp, from, to).Inc()
}

func (m *Metrics) ObserveGatewayCall(psp, operation, result string, seconds float64) {
	m.gatewayCalls.WithLabelValues(psp, operation, result).Inc()
	m.gatewayDuration.WithLabelValues(psp, operation).Observe(seconds)
}

func (m *Metrics) ObserveInquiry(psp, status string) {
	m.inquiries.WithLabelValues(psp, status).Inc()
}

func (m *Metrics) ObserveVerifyRejected(psp, reason string) {
	m.verifyRejected.WithLabelValues(psp, reason).Inc()
}

func (m *Metrics) ObserveEventFailure(event string) {
	m.eventFailures.WithLabelValues(event).Inc()
}
