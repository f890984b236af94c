package outbound

import (
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ============================================================================
// ORDER STATUS
// ============================================================================

// Status is the lifecycle state of an outbound order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInPicking Status = "IN_PICKING"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInPicking, StatusPacked, StatusShipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanPick checks if items may still be picked.
func (s Status) CanPick() bool {
	return s == StatusPending || s == StatusInPicking
}

// CanShip checks if the order may leave the warehouse.
func (s Status) CanShip() bool {
	return s == StatusPacked
}

// CanCancel checks if the order may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusInPicking || s == StatusPacked
}

// CanDelete checks if the order may be removed outright.
func (s Status) CanDelete() bool {
	return s == StatusPending
}

// ============================================================================
// ORDER ENTITY
// ============================================================================

// Order is a customer order fulfilled from warehouse stock.
type Order struct {
	ID           int64      `json:"id"`
	CustomerName string     `json:"customer_name"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ShippedAt    *time.Time `json:"shipped_at,omitempty"`
	Items        []Item     `json:"items"`
}

// Item is one ordered product to be picked from one location.
type Item struct {
	ID              int64 `json:"id"`
	OrderID         int64 `json:"order_id"`
	ProductID       int64 `json:"product_id"`
	LocationID      int64 `json:"location_id"`
	QuantityOrdered int64 `json:"quantity_ordered"`
	QuantityPicked  int64 `json:"quantity_picked"`
}

// Remaining is what may still be picked for the item.
func (i Item) Remaining() int64 {
	return i.QuantityOrdered - i.QuantityPicked
}

// Complete reports whether the item has been fully picked.
func (i Item) Complete() bool {
	return i.QuantityPicked >= i.QuantityOrdered
}

func (o *Order) item(id int64) (*Item, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// ============================================================================
// INPUTS
// ============================================================================

// CreateInput describes a new order.
type CreateInput struct {
	CustomerName string
	Items        []CreateItemInput
	ActorID      int64
}

// CreateItemInput is one line of a new order.
type CreateItemInput struct {
	ProductID       int64
	LocationID      int64
	QuantityOrdered int64
}

// PickInput reserves picked quantities against order items.
type PickInput struct {
	OrderID        int64
	Lines          []PickLine
	IdempotencyKey string
	ActorID        int64
}

// PickLine is the quantity picked for one item.
type PickLine struct {
	ItemID         int64
	QuantityPicked int64
}

// TransitionInput identifies an order for ship, cancel or delete.
type TransitionInput struct {
	OrderID        int64
	IdempotencyKey string
	ActorID        int64
}

// ListFilter narrows an order listing. CustomerName matches case-insensitively
// anywhere in the name. Zero values match everything.
type ListFilter struct {
	CustomerName string
	Status       Status
	Page         int
	PerPage      int
}

func (f ListFilter) pagination(total int) shared.Pagination {
	return shared.NewPagination(f.Page, f.PerPage, total)
}

// Offset returns the row offset for the filter's page.
func (f ListFilter) Offset() int { return f.pagination(0).Offset() }

// Limit returns the capped page size.
func (f ListFilter) Limit() int { return f.pagination(0).PerPage }
