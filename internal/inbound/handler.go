package inbound

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler wires HTTP endpoints for inbound shipments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inbound handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/receive", h.handleReceive)
}

type createRequest struct {
	SupplierID int64               `json:"supplier_id" validate:"required,gt=0"`
	ExpectedAt *time.Time          `json:"expected_at"`
	Items      []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ProductID        int64 `json:"product_id" validate:"required,gt=0"`
	LocationID       int64 `json:"location_id" validate:"required,gt=0"`
	QuantityExpected int64 `json:"quantity_expected" validate:"required,gt=0"`
}

type receiveRequest struct {
	Items []receiveItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Negative quantities are left to the service so they surface as item violations.
type receiveItemRequest struct {
	ItemID           int64 `json:"item_id" validate:"required,gt=0"`
	QuantityReceived int64 `json:"quantity_received"`
}

type listResponse struct {
	Data       []Shipment        `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(strings.ToUpper(r.URL.Query().Get("status")))}
	var err error
	if filter.SupplierID, err = httpx.Int64Query(r, "supplier_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Page, err = httpx.IntQuery(r, "page", 1); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.PerPage, err = httpx.IntQuery(r, "limit", 20); err != nil {
		h.fail(w, r, err)
		return
	}
	shipments, meta, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: shipments, Pagination: meta})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), DeleteInput{ShipmentID: id, ActorID: shared.ActorFromContext(r.Context())}); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreateInput{SupplierID: req.SupplierID, ExpectedAt: req.ExpectedAt, ActorID: shared.ActorFromContext(r.Context())}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput(item))
	}
	shipment, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shipment, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceiveInput{
		ShipmentID:     id,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	for _, item := range req.Items {
		input.Lines = append(input.Lines, ReceiveLine(item))
	}
	shipment, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
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
		h.logger.Error("inbound request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemMappings...)
}
