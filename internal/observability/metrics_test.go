package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}

func TestMovementsCommittedCountsByKind(t *testing.T) {
	metrics := NewMetrics()
	metrics.MovementsCommitted(context.Background(), []inventory.MovementRecord{
		{Kind: inventory.KindMove, QuantityDelta: -5},
		{Kind: inventory.KindMove, QuantityDelta: 5},
		{Kind: inventory.KindShip, QuantityDelta: -3, ReservedDelta: -3},
	})

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_inventory_movements_total{kind="MOVE"} 2`)
	require.Contains(t, body, `odyssey_inventory_moved_units_total{kind="MOVE"} 10`)
	require.Contains(t, body, `odyssey_inventory_moved_units_total{kind="SHIP"} 6`)
}

func TestObserveRejectionLabelsByKind(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveRejection("inventory.Move", &inventory.Violation{Kind: inventory.ErrCapacityExceeded})
	metrics.ObserveRejection("inbound.Receive", fmt.Errorf("wrapped: %w", inbound.ErrOverReceipt))
	metrics.ObserveRejection("inventory.Adjust", fmt.Errorf("boom"))

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_inventory_rejections_total{operation="inventory.Move",reason="capacity_exceeded"} 1`)
	require.Contains(t, body, `odyssey_inventory_rejections_total{operation="inbound.Receive",reason="over_receipt"} 1`)
	require.Contains(t, body, `odyssey_inventory_rejections_total{operation="inventory.Adjust",reason="internal"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.MovementsCommitted(context.Background(), []inventory.MovementRecord{{Kind: inventory.KindAdjust}})
	metrics.ObserveRejection("inventory.Adjust", inventory.ErrValidation)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "Service Unavailable"))
}
