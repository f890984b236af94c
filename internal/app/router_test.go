package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func testConfig() *Config {
	return &Config{
		AppEnv:             "test",
		StoreDriver:        DriverMemory,
		AppRequestTimeout:  5 * time.Second,
		DashboardCacheTTL:  time.Minute,
		RateLimitPerMinute: 1000,
	}
}

type apiHarness struct {
	t         *testing.T
	server    *httptest.Server
	container *Container
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	container, err := Build(context.Background(), testConfig(), logger, observability.NewMetrics(), Options{
		Clock: func() time.Time { return fixedNow },
		Redis: client,
	})
	require.NoError(t, err)
	t.Cleanup(container.Close)

	server := httptest.NewServer(NewRouter(NewHandlers(container, jobs.NewHandler(nil, nil, logger))))
	t.Cleanup(server.Close)
	return &apiHarness{t: t, server: server, container: container}
}

func (h *apiHarness) do(method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, data
}

func (h *apiHarness) decode(method, path string, body any, status int, dest any) {
	h.t.Helper()
	resp, data := h.do(method, path, body, nil)
	require.Equal(h.t, status, resp.StatusCode, string(data))
	if dest != nil {
		require.NoError(h.t, json.Unmarshal(data, dest))
	}
}

func TestHealthAndJobs(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp, body = h.do(http.MethodGet, "/jobs/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"pending":0`)
}

func TestStockFlowThroughAPI(t *testing.T) {
	h := newHarness(t)

	var location inventory.Location
	h.decode(http.MethodPost, "/api/v1/locations", map[string]any{"code": "A-01", "capacity": 100}, http.StatusCreated, &location)
	var product inventory.Product
	h.decode(http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "SKU-1", "name": "Widget", "category": "Tools", "min_stock_level": 10,
	}, http.StatusCreated, &product)

	var summary reporting.Summary
	h.decode(http.MethodGet, "/api/v1/dashboard/summary", nil, http.StatusOK, &summary)
	require.Equal(t, 1, summary.TotalProducts)
	require.Zero(t, summary.TotalStockUnits)
	require.Equal(t, 1, summary.LowStockProductsCount)

	resp, body := h.do(http.MethodPost, "/api/v1/inventory/adjust", map[string]any{
		"product_id": product.ID, "location_id": location.ID, "quantity_change": 40, "reason": "cycle count",
	}, map[string]string{ActorHeader: "7"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var entry inventory.StockEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	require.Equal(t, int64(40), entry.Quantity)

	h.decode(http.MethodGet, "/api/v1/dashboard/summary", nil, http.StatusOK, &summary)
	require.Equal(t, int64(40), summary.TotalStockUnits)
	require.Zero(t, summary.LowStockProductsCount)
	require.Equal(t, int64(40), summary.TotalInbound30Days)

	resp, body = h.do(http.MethodPost, "/api/v1/inventory/adjust", map[string]any{
		"product_id": product.ID, "location_id": location.ID, "quantity_change": 61, "reason": "overflow",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	var low []reporting.LowStockItem
	h.decode(http.MethodGet, "/api/v1/inventory/low-stock", nil, http.StatusOK, &low)
	require.Empty(t, low)

	_, metrics := h.do(http.MethodGet, "/metrics", nil, nil)
	require.Contains(t, string(metrics), `odyssey_inventory_movements_total{kind="ADJUST"} 1`)
	require.Contains(t, string(metrics), `odyssey_inventory_rejections_total{operation="inventory.Adjust",reason="capacity_exceeded"} 1`)

	logs := h.container.Store.AuditLogs()
	require.NotEmpty(t, logs)
	require.Equal(t, int64(7), logs[len(logs)-1].ActorID)
	require.Equal(t, "inventory:adjust", logs[len(logs)-1].Action)
}

func TestInvalidActorHeader(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(http.MethodGet, "/api/v1/locations", nil, map[string]string{ActorHeader: "abc"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShipmentAndOrderRoutes(t *testing.T) {
	h := newHarness(t)
	var location inventory.Location
	h.decode(http.MethodPost, "/api/v1/locations", map[string]any{"code": "DOCK", "capacity": 50}, http.StatusCreated, &location)
	var product inventory.Product
	h.decode(http.MethodPost, "/api/v1/products", map[string]any{"sku": "BOX", "name": "Box"}, http.StatusCreated, &product)

	var shipment struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Items  []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	h.decode(http.MethodPost, "/api/v1/shipments", map[string]any{
		"supplier_id": 3,
		"items":       []map[string]any{{"product_id": product.ID, "location_id": location.ID, "quantity_expected": 12}},
	}, http.StatusCreated, &shipment)
	require.Equal(t, "PENDING", shipment.Status)

	path := fmt.Sprintf("/api/v1/shipments/%d/receive", shipment.ID)
	h.decode(http.MethodPost, path, map[string]any{
		"items": []map[string]any{{"item_id": shipment.Items[0].ID, "quantity_received": 12}},
	}, http.StatusOK, &shipment)
	require.Equal(t, "COMPLETED", shipment.Status)

	var order struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Items  []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	h.decode(http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_name": "ACME",
		"items":         []map[string]any{{"product_id": product.ID, "location_id": location.ID, "quantity_ordered": 5}},
	}, http.StatusCreated, &order)
	h.decode(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/pick", order.ID), map[string]any{
		"items": []map[string]any{{"item_id": order.Items[0].ID, "quantity_picked": 5}},
	}, http.StatusOK, &order)
	require.Equal(t, "PACKED", order.Status)
	h.decode(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/ship", order.ID), nil, http.StatusOK, &order)
	require.Equal(t, "SHIPPED", order.Status)

	var stock reporting.ProductRollup
	h.decode(http.MethodGet, fmt.Sprintf("/api/v1/inventory/products/%d/stock", product.ID), nil, http.StatusOK, &stock)
	require.Equal(t, int64(7), stock.TotalQuantity)
}

func TestMasterdataChangesRefreshDashboard(t *testing.T) {
	h := newHarness(t)

	var summary reporting.Summary
	h.decode(http.MethodGet, "/api/v1/dashboard/summary", nil, http.StatusOK, &summary)
	require.Zero(t, summary.TotalProducts)

	h.decode(http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "LOW-1", "name": "Low", "min_stock_level": 10,
	}, http.StatusCreated, nil)
	h.decode(http.MethodGet, "/api/v1/dashboard/summary", nil, http.StatusOK, &summary)
	require.Equal(t, 1, summary.TotalProducts)
	require.Equal(t, 1, summary.LowStockProductsCount)
	require.Len(t, summary.LowStockAlerts, 1)

	h.decode(http.MethodPost, "/api/v1/locations", map[string]any{"code": "B-01", "capacity": 80}, http.StatusCreated, nil)
	h.decode(http.MethodGet, "/api/v1/dashboard/summary", nil, http.StatusOK, &summary)
	require.Equal(t, int64(80), summary.WarehouseUtilization.TotalCapacity)
	require.Equal(t, int64(80), summary.WarehouseUtilization.AvailableCapacity)
}

func TestListingDeleteAndCapacityRoutes(t *testing.T) {
	h := newHarness(t)
	var location inventory.Location
	h.decode(http.MethodPost, "/api/v1/locations", map[string]any{"code": "C-01", "capacity": 30}, http.StatusCreated, &location)
	var product inventory.Product
	h.decode(http.MethodPost, "/api/v1/products", map[string]any{"sku": "CAB", "name": "Cable", "category": "Electrical"}, http.StatusCreated, &product)
	h.decode(http.MethodPost, "/api/v1/products", map[string]any{"sku": "TAPE", "name": "Tape", "category": "Adhesives"}, http.StatusCreated, nil)
	h.decode(http.MethodPost, "/api/v1/products", map[string]any{"sku": "MISC", "name": "Misc"}, http.StatusCreated, nil)

	var categories struct {
		Data []string `json:"data"`
	}
	h.decode(http.MethodGet, "/api/v1/products/categories", nil, http.StatusOK, &categories)
	require.Equal(t, []string{"Adhesives", "Electrical"}, categories.Data)

	type shipmentBody struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Items  []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	newShipment := func(supplier int64) shipmentBody {
		var out shipmentBody
		h.decode(http.MethodPost, "/api/v1/shipments", map[string]any{
			"supplier_id": supplier,
			"items":       []map[string]any{{"product_id": product.ID, "location_id": location.ID, "quantity_expected": 10}},
		}, http.StatusCreated, &out)
		return out
	}
	first, second, third := newShipment(3), newShipment(4), newShipment(3)

	var shipments struct {
		Data       []shipmentBody `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	h.decode(http.MethodGet, "/api/v1/shipments?supplier_id=3", nil, http.StatusOK, &shipments)
	require.Equal(t, 2, shipments.Pagination.Total)
	require.Equal(t, []int64{first.ID, third.ID}, []int64{shipments.Data[0].ID, shipments.Data[1].ID})
	require.Len(t, shipments.Data[0].Items, 1)

	h.decode(http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/receive", second.ID), map[string]any{
		"items": []map[string]any{{"item_id": second.Items[0].ID, "quantity_received": 4}},
	}, http.StatusOK, nil)
	h.decode(http.MethodGet, "/api/v1/shipments?status=in_process", nil, http.StatusOK, &shipments)
	require.Equal(t, 1, shipments.Pagination.Total)
	require.Equal(t, second.ID, shipments.Data[0].ID)
	resp, _ := h.do(http.MethodGet, "/api/v1/shipments?status=LOST", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(http.MethodDelete, fmt.Sprintf("/api/v1/shipments/%d", first.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, fmt.Sprintf("/api/v1/shipments/%d", first.ID), nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(http.MethodDelete, fmt.Sprintf("/api/v1/shipments/%d", second.ID), nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var capacity reporting.LocationCapacity
	h.decode(http.MethodGet, fmt.Sprintf("/api/v1/locations/%d/capacity", location.ID), nil, http.StatusOK, &capacity)
	require.Equal(t, reporting.LocationCapacity{
		LocationID: location.ID, Code: "C-01", TotalCapacity: 30, UsedCapacity: 4, AvailableCapacity: 26,
	}, capacity)
	resp, _ = h.do(http.MethodGet, "/api/v1/locations/999/capacity", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	for _, customer := range []string{"Acme Corp", "Globex", "ACME Labs"} {
		h.decode(http.MethodPost, "/api/v1/orders", map[string]any{
			"customer_name": customer,
			"items":         []map[string]any{{"product_id": product.ID, "location_id": location.ID, "quantity_ordered": 1}},
		}, http.StatusCreated, nil)
	}
	var orders struct {
		Data []struct {
			CustomerName string `json:"customer_name"`
		} `json:"data"`
		Pagination struct {
			Total   int `json:"total"`
			PerPage int `json:"per_page"`
		} `json:"pagination"`
	}
	h.decode(http.MethodGet, "/api/v1/orders?customer_name=acme&status=pending&limit=1", nil, http.StatusOK, &orders)
	require.Equal(t, 2, orders.Pagination.Total)
	require.Equal(t, 1, orders.Pagination.PerPage)
	require.Len(t, orders.Data, 1)
	require.Equal(t, "Acme Corp", orders.Data[0].CustomerName)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = " Memory "
	require.NoError(t, cfg.Validate())
	require.Equal(t, DriverMemory, cfg.StoreDriver)

	cfg.StoreDriver = "sqlite"
	require.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.RateLimitPerMinute = 0
	require.Error(t, cfg.Validate())
}

func TestBuildAppliesSeedFile(t *testing.T) {
	cfg := testConfig()
	cfg.SeedFile = "../../deploy/seed/sample.json"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	container, err := Build(context.Background(), cfg, logger, nil, Options{Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	t.Cleanup(container.Close)

	summary, err := container.Reporting.BuildSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, summary.TotalProducts)
	require.Equal(t, int64(210), summary.TotalStockUnits)
	require.Equal(t, 2, summary.LowStockProductsCount)
	require.Nil(t, container.Cache)
}

func TestInTestModeReadsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
