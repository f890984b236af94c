package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movementsTotal  *prometheus.CounterVec
	movedUnits      *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
}

var (
	_ inventory.MovementHook      = (*Metrics)(nil)
	_ inventory.RejectionObserver = (*Metrics)(nil)
)

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_movements_total",
		Help: "Committed movement records by kind.",
	}, []string{"kind"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_moved_units_total",
		Help: "Absolute quantity and reservation change carried by committed movements, by kind.",
	}, []string{"kind"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_rejections_total",
		Help: "Rejected ledger operations by operation and reason.",
	}, []string{"operation", "reason"})
	registry.MustRegister(requests, duration, movements, units, rejections)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movementsTotal:  movements,
		movedUnits:      units,
		rejectionsTotal: rejections,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// MovementsCommitted counts committed movement records.
func (m *Metrics) MovementsCommitted(_ context.Context, records []inventory.MovementRecord) {
	if m == nil {
		return
	}
	for _, rec := range records {
		kind := string(rec.Kind)
		m.movementsTotal.WithLabelValues(kind).Inc()
		m.movedUnits.WithLabelValues(kind).Add(float64(abs(rec.QuantityDelta) + abs(rec.ReservedDelta)))
	}
}

// ObserveRejection counts a failed operation under its error kind.
func (m *Metrics) ObserveRejection(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(operation, RejectionReason(err)).Inc()
}

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{inventory.ErrInsufficientStock, "insufficient_stock"},
	{inventory.ErrInsufficientAvailable, "insufficient_available"},
	{inventory.ErrCapacityExceeded, "capacity_exceeded"},
	{inventory.ErrInvalidMove, "invalid_move"},
	{inventory.ErrInvariantViolation, "invariant_violation"},
	{inventory.ErrNotFound, "not_found"},
	{inventory.ErrValidation, "validation"},
	{inbound.ErrOverReceipt, "over_receipt"},
	{inbound.ErrInvalidState, "invalid_state"},
	{outbound.ErrOverPick, "over_pick"},
	{outbound.ErrInvalidState, "invalid_state"},
	{shared.ErrIdempotencyConflict, "duplicate"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "timeout"},
}

// RejectionReason maps an error to a low-cardinality label.
func RejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
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
