package outbound

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler wires HTTP endpoints for outbound orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the outbound handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/pick", h.handlePick)
	r.Post("/{id}/ship", h.handleShip)
	r.Post("/{id}/cancel", h.handleCancel)
}

type createRequest struct {
	CustomerName string              `json:"customer_name" validate:"required,max=200"`
	Items        []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ProductID       int64 `json:"product_id" validate:"required,gt=0"`
	LocationID      int64 `json:"location_id" validate:"required,gt=0"`
	QuantityOrdered int64 `json:"quantity_ordered" validate:"required,gt=0"`
}

type pickRequest struct {
	Items []pickItemRequest `json:"items" validate:"required,min=1,dive"`
}

type pickItemRequest struct {
	ItemID         int64 `json:"item_id" validate:"required,gt=0"`
	QuantityPicked int64 `json:"quantity_picked"`
}

type listResponse struct {
	Data       []Order           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{
		CustomerName: query.Get("customer_name"),
		Status:       Status(strings.ToUpper(query.Get("status"))),
	}
	var err error
	if filter.Page, err = httpx.IntQuery(r, "page", 1); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.PerPage, err = httpx.IntQuery(r, "limit", 20); err != nil {
		h.fail(w, r, err)
		return
	}
	orders, meta, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: meta})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreateInput{CustomerName: req.CustomerName, ActorID: shared.ActorFromContext(r.Context())}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput(item))
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.transition(r, id)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req pickRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := PickInput{
		OrderID:        id,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	for _, item := range req.Items {
		input.Lines = append(input.Lines, PickLine(item))
	}
	order, err := h.service.Pick(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Ship(r.Context(), h.transition(r, id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), h.transition(r, id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(r *http.Request, id int64) TransitionInput {
	return TransitionInput{
		OrderID:        id,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        shared.ActorFromContext(r.Context()),
	}
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return 0, false
	}
	return id, true
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
		h.logger.Error("outbound request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemMappings...)
}
