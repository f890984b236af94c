package inventory

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

var (
	// ErrInvariantViolation is returned when a delta would break 0 <= reserved <= quantity.
	ErrInvariantViolation = errors.New("inventory: invariant violation")
	// ErrInsufficientStock indicates a decrease larger than the physical quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInsufficientAvailable indicates a request larger than unreserved stock.
	ErrInsufficientAvailable = errors.New("inventory: insufficient available stock")
	// ErrCapacityExceeded indicates the location cannot hold the extra units.
	ErrCapacityExceeded = errors.New("inventory: location capacity exceeded")
	// ErrInvalidMove rejects same-location or non-positive transfers.
	ErrInvalidMove = errors.New("inventory: invalid move")
	// ErrNotFound indicates a missing product, location or entry.
	ErrNotFound = errors.New("inventory: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("inventory: invalid input")
)

// Violation carries the quantities behind a rejected operation. Limit is the
// bound that was hit: available units, remaining capacity or outstanding quantity.
type Violation struct {
	Kind       error
	ProductID  int64
	LocationID int64
	ItemID     int64
	Requested  int64
	Limit      int64
}

func (v *Violation) Error() string {
	if v.ItemID != 0 {
		return fmt.Sprintf("%v: item %d requested %d, limit %d", v.Kind, v.ItemID, v.Requested, v.Limit)
	}
	return fmt.Sprintf("%v: product %d at location %d requested %d, limit %d", v.Kind, v.ProductID, v.LocationID, v.Requested, v.Limit)
}

func (v *Violation) Unwrap() error { return v.Kind }

// ProblemFields exposes the violation as problem-detail extensions.
func (v *Violation) ProblemFields() map[string]any {
	fields := map[string]any{
		"requested": v.Requested,
		"limit":     v.Limit,
	}
	if v.ProductID != 0 {
		fields["product_id"] = v.ProductID
	}
	if v.LocationID != 0 {
		fields["location_id"] = v.LocationID
	}
	if v.ItemID != 0 {
		fields["item_id"] = v.ItemID
	}
	return fields
}

func violation(kind error, key Key, requested, limit int64) error {
	return &Violation{Kind: kind, ProductID: key.ProductID, LocationID: key.LocationID, Requested: requested, Limit: limit}
}

// ProblemMappings renders inventory errors as problem responses.
var ProblemMappings = []httpx.StatusMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrInvalidMove, Status: http.StatusBadRequest, Title: "Invalid Move"},
	{Err: ErrInsufficientStock, Status: http.StatusUnprocessableEntity, Title: "Insufficient Stock"},
	{Err: ErrInsufficientAvailable, Status: http.StatusUnprocessableEntity, Title: "Insufficient Available Stock"},
	{Err: ErrCapacityExceeded, Status: http.StatusUnprocessableEntity, Title: "Capacity Exceeded"},
	{Err: ErrInvariantViolation, Status: http.StatusUnprocessableEntity, Title: "Invariant Violation"},
}
