package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler handles master data HTTP requests
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new master data handler
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountLocationRoutes registers location routes.
func (h *Handler) MountLocationRoutes(r chi.Router) {
	r.Get("/", h.listLocations)
	r.Post("/", h.createLocation)
	r.Get("/{id}", h.showLocation)
}

// MountProductRoutes registers product routes.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/{id}", h.showProduct)
}

type locationRequest struct {
	Code        string `json:"code" validate:"required,max=50"`
	Description string `json:"description" validate:"max=255"`
	Capacity    int64  `json:"capacity" validate:"required,gt=0"`
}

type productRequest struct {
	SKU           string `json:"sku" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=255"`
	Category      string `json:"category" validate:"max=120"`
	MinStockLevel int64  `json:"min_stock_level" validate:"gte=0"`
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	locations, meta, err := h.service.ListLocations(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[inventory.Location]{Data: locations, Pagination: meta})
}

func (h *Handler) showLocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	location, err := h.service.GetLocation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !h.decode(w, r, &req) {
		return
	}
	location, err := h.service.CreateLocation(r.Context(), inventory.Location{
		Code:        req.Code,
		Description: req.Description,
		Capacity:    req.Capacity,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, location)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.filters(w, r)
	if !ok {
		return
	}
	filters.Category = r.URL.Query().Get("category")
	products, meta, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[inventory.Product]{Data: products, Pagination: meta})
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), productFromRequest(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": categories})
}

func productFromRequest(req productRequest) inventory.Product {
	return inventory.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Category:      req.Category,
		MinStockLevel: req.MinStockLevel,
	}
}

func (h *Handler) filters(w http.ResponseWriter, r *http.Request) (ListFilters, bool) {
	page, err := httpx.IntQuery(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return ListFilters{}, false
	}
	limit, err := httpx.IntQuery(r, "limit", 20)
	if err != nil {
		h.fail(w, r, err)
		return ListFilters{}, false
	}
	return ListFilters{Search: r.URL.Query().Get("search"), Page: page, PerPage: limit}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := httpx.Validate(h.validate, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err, ProblemMappings...) >= http.StatusInternalServerError {
		h.logger.Error("masterdata request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemMappings...)
}
