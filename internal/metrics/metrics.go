// Package metrics holds the prometheus collectors for the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "palette"

// Metrics groups the service collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	authentications    *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	vouchersIssued     prometheus.Counter
	voucherFailures    *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "authentications_total",
			Help:      "Wallet authentication attempts by outcome",
		}, []string{"outcome"}),
		sessionValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_validations_total",
			Help:      "Session token validations by outcome",
		}, []string{"outcome"}),
		vouchersIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voucher",
			Name:      "issued_total",
			Help:      "Claim vouchers signed",
		}),
		voucherFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voucher",
			Name:      "failures_total",
			Help:      "Voucher requests rejected, by error code",
		}, []string{"code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Authentication(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionValidation(outcome string) {
	if m == nil {
		return
	}
	m.sessionValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VoucherIssued() {
	if m == nil {
		return
	}
	m.vouchersIssued.Inc()
}

func (m *Metrics) VoucherFailed(code string) {
	if m == nil {
		return
	}
	m.voucherFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}
