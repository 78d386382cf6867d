package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the API and CLI.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PaymentsRecordedTotal       *prometheus.CounterVec
	OverdueMarkedTotal          prometheus.Counter
	SnapshotsCreatedTotal       prometheus.Counter
	AuthorizationDeniedTotal    *prometheus.CounterVec
	StudentImportRowsTotal      *prometheus.CounterVec
	InstitutionTransitionsTotal *prometheus.CounterVec
	DemoRequestsTotal           *prometheus.CounterVec
	MessagesSentTotal           *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edupay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PaymentsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_fee_payments_recorded_total",
				Help: "Fee payments recorded, by payment method",
			},
			[]string{"method"},
		),
		OverdueMarkedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edupay_fee_assignments_marked_overdue_total",
			Help: "Fee assignments transitioned to overdue",
		}),
		SnapshotsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edupay_fee_analysis_snapshots_created_total",
			Help: "Daily collection snapshots persisted",
		}),
		AuthorizationDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_authorization_denied_total",
				Help: "Requests denied by the institution role gate, by permission",
			},
			[]string{"permission"},
		),
		StudentImportRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_student_import_rows_total",
				Help: "Student import rows processed, by outcome",
			},
			[]string{"result"},
		),
		InstitutionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_institution_transitions_total",
				Help: "Institution lifecycle transitions, by action",
			},
			[]string{"action"},
		),
		DemoRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_demo_requests_total",
				Help: "Demo request events, by event",
			},
			[]string{"event"},
		),
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edupay_principal_messages_sent_total",
				Help: "Principal messages sent, by target",
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PaymentsRecordedTotal,
		m.OverdueMarkedTotal,
		m.SnapshotsCreatedTotal,
		m.AuthorizationDeniedTotal,
		m.StudentImportRowsTotal,
		m.InstitutionTransitionsTotal,
		m.DemoRequestsTotal,
		m.MessagesSentTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) PaymentRecorded(method string) {
	if m != nil {
		m.PaymentsRecordedTotal.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) OverdueMarked(n int) {
	if m != nil && n > 0 {
		m.OverdueMarkedTotal.Add(float64(n))
	}
}

func (m *Metrics) SnapshotCreated() {
	if m != nil {
		m.SnapshotsCreatedTotal.Inc()
	}
}

func (m *Metrics) AuthorizationDenied(permission string) {
	if m != nil {
		m.AuthorizationDeniedTotal.WithLabelValues(permission).Inc()
	}
}

func (m *Metrics) ImportRows(result string, n int) {
	if m != nil && n > 0 {
		m.StudentImportRowsTotal.WithLabelValues(result).Add(float64(n))
	}
}

func (m *Metrics) InstitutionTransition(action string) {
	if m != nil {
		m.InstitutionTransitionsTotal.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) DemoRequestEvent(event string) {
	if m != nil {
		m.DemoRequestsTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) MessageSent(target string) {
	if m != nil {
		m.MessagesSentTotal.WithLabelValues(target).Inc()
	}
}
