package reporting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler exposes dashboard and stock views.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.handleSummary)
	r.Get("/utilization", h.handleUtilization)
	r.Get("/movements", h.handleMovements)
	r.Get("/stock-by-category", h.handleStockByCategory)
	r.Get("/top-products", h.handleTopProducts)
}

// MountInventoryRoutes registers the read views served under the inventory prefix.
func (h *Handler) MountInventoryRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/products/{productID}/stock", h.handleProductStock)
}

// MountLocationRoutes registers the capacity view served under the locations prefix.
func (h *Handler) MountLocationRoutes(r chi.Router) {
	r.Get("/{id}/capacity", h.handleLocationCapacity)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	h.respond(w, r, summary, err)
}

func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	util, err := h.service.Utilization(r.Context())
	h.respond(w, r, util, err)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	series, err := h.service.MovementSeries(r.Context())
	h.respond(w, r, series, err)
}

func (h *Handler) handleStockByCategory(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.StockByCategory(r.Context())
	h.respond(w, r, categories, err)
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.IntQuery(r, "limit", DefaultTopN)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	top, err := h.service.TopProducts(r.Context(), limit)
	h.respond(w, r, top, err)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	h.respond(w, r, items, err)
}

func (h *Handler) handleProductStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "productID"))
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	rollup, err := h.service.ProductRollup(r.Context(), id)
	h.respond(w, r, rollup, err)
}

func (h *Handler) handleLocationCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	capacity, err := h.service.LocationCapacity(r.Context(), id)
	h.respond(w, r, capacity, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		if httpx.StatusOf(err, ProblemMappings...) >= http.StatusInternalServerError {
			h.logger.Error("reporting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err, ProblemMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}
