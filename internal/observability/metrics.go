package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/aurum-erp/aurum/internal/jobs"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stockMovements  *prometheus.CounterVec
	salesTotal      *prometheus.CounterVec
	loyaltyPoints   *prometheus.CounterVec
	payments        *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	sidecarUp       prometheus.Gauge
	permissionDeny  *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, domain and job collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aurum_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_stock_movements_total",
		Help: "Posted stock movements by type.",
	}, []string{"type"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_sales_events_total",
		Help: "Committed sales and returns.",
	}, []string{"event"})
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_loyalty_points_total",
		Help: "Loyalty points moved by transaction type.",
	}, []string{"type"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_payment_sessions_total",
		Help: "Payment sessions reaching a terminal state.",
	}, []string{"state", "reason"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_webhook_deliveries_total",
		Help: "Webhook deliveries by endpoint and outcome.",
	}, []string{"endpoint", "result"})
	sidecar := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aurum_messaging_sidecar_up",
		Help: "1 when the messaging sidecar answers health checks.",
	})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurum_permission_denials_total",
		Help: "Requests refused by the permission guard.",
	}, []string{"resource", "action"})
	registry.MustRegister(requests, duration, movements, sales, points, payments, webhooks, sidecar, denials)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		stockMovements:  movements,
		salesTotal:      sales,
		loyaltyPoints:   points,
		payments:        payments,
		webhooks:        webhooks,
		sidecarUp:       sidecar,
		permissionDeny:  denials,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the background job collectors.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// StockMovement counts a posted movement.
func (m *Metrics) StockMovement(kind string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(kind).Inc()
}

// SaleEvent counts a committed sale or return.
func (m *Metrics) SaleEvent(event string) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(event).Inc()
}

// LoyaltyPoints adds moved points, signed values are recorded as magnitudes.
func (m *Metrics) LoyaltyPoints(kind string, points int64) {
	if m == nil || points == 0 {
		return
	}
	if points < 0 {
		points = -points
	}
	m.loyaltyPoints.WithLabelValues(kind).Add(float64(points))
}

// PaymentFinished counts a payment session reaching a terminal state.
func (m *Metrics) PaymentFinished(state, reason string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(state, reason).Inc()
}

// WebhookDelivery counts one webhook delivery outcome.
func (m *Metrics) WebhookDelivery(endpoint, result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(endpoint, result).Inc()
}

// SidecarHealthy sets the sidecar health gauge.
func (m *Metrics) SidecarHealthy(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sidecarUp.Set(1)
		return
	}
	m.sidecarUp.Set(0)
}

// PermissionDenied counts a guard refusal.
func (m *Metrics) PermissionDenied(resource, action string) {
	if m == nil {
		return
	}
	m.permissionDeny.WithLabelValues(resource, action).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
