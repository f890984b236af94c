package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/movements", h.handleMovements)
	r.Get("/{id}", h.handleGet)
	r.Post("/adjust", h.handleAdjust)
	r.Post("/move", h.handleMove)
	r.Post("/reserve", h.handleReserve)
	r.Post("/release", h.handleRelease)
}

type adjustRequest struct {
	ProductID      int64  `json:"product_id" validate:"required,gt=0"`
	LocationID     int64  `json:"location_id" validate:"required,gt=0"`
	QuantityChange int64  `json:"quantity_change" validate:"required"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

type moveRequest struct {
	ProductID      int64 `json:"product_id" validate:"required,gt=0"`
	FromLocationID int64 `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64 `json:"to_location_id" validate:"required,gt=0"`
	Quantity       int64 `json:"quantity"`
}

type reservationRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Ref        string `json:"ref" validate:"max=120"`
}

type listResponse struct {
	Data       []StockEntry      `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter EntryFilter
	var err error
	if filter.ProductID, err = httpx.Int64Query(r, "product_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.LocationID, err = httpx.Int64Query(r, "location_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := httpx.IntQuery(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := httpx.IntQuery(r, "limit", 20)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, meta, err := h.service.ListEntries(r.Context(), filter, page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: entries, Pagination: meta})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	var filter MovementFilter
	var err error
	if filter.ProductID, err = httpx.Int64Query(r, "product_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.LocationID, err = httpx.Int64Query(r, "location_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Limit, err = httpx.IntQuery(r, "limit", 100); err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Adjust(r.Context(), AdjustInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		QuantityChange: req.QuantityChange,
		Reason:         req.Reason,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !h.decode(w, r, &req) {
		return
	}
	_, err := h.service.Move(r.Context(), MoveInput{
		ProductID:      req.ProductID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, op func(context.Context, ReservationInput) (StockEntry, error)) {
	var req reservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := op(r.Context(), ReservationInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Reference:  req.Ref,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemMappings...)
}
