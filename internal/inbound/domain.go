package inbound

import (
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Status is the lifecycle state of an inbound shipment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInProcess Status = "IN_PROCESS"
	StatusCompleted Status = "COMPLETED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProcess, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanDelete reports whether the shipment may be removed outright.
func (s Status) CanDelete() bool {
	return s == StatusPending
}

// CanReceive reports whether more goods may be booked against the shipment.
func (s Status) CanReceive() bool {
	return s == StatusPending || s == StatusInProcess
}

// Shipment is a supplier delivery expected at the warehouse.
type Shipment struct {
	ID         int64      `json:"id"`
	SupplierID int64      `json:"supplier_id"`
	Status     Status     `json:"status"`
	ExpectedAt *time.Time `json:"expected_at,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Items      []Item     `json:"items"`
}

// Item is one expected product at one target location.
type Item struct {
	ID               int64 `json:"id"`
	ShipmentID       int64 `json:"shipment_id"`
	ProductID        int64 `json:"product_id"`
	LocationID       int64 `json:"location_id"`
	QuantityExpected int64 `json:"quantity_expected"`
	QuantityReceived int64 `json:"quantity_received"`
}

// Outstanding is what may still be received against the item.
func (i Item) Outstanding() int64 {
	return i.QuantityExpected - i.QuantityReceived
}

// Complete reports whether the item has been fully received.
func (i Item) Complete() bool {
	return i.QuantityReceived >= i.QuantityExpected
}

// item returns the item with id, or false.
func (s *Shipment) item(id int64) (*Item, bool) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i], true
		}
	}
	return nil, false
}

// CreateInput describes a new shipment.
type CreateInput struct {
	SupplierID int64
	ExpectedAt *time.Time
	Items      []CreateItemInput
	ActorID    int64
}

// CreateItemInput is one expected line of a new shipment.
type CreateItemInput struct {
	ProductID        int64
	LocationID       int64
	QuantityExpected int64
}

// ReceiveInput books arrived quantities against shipment items.
type ReceiveInput struct {
	ShipmentID     int64
	Lines          []ReceiveLine
	IdempotencyKey string
	ActorID        int64
}

// ReceiveLine is the quantity that arrived for one item.
type ReceiveLine struct {
	ItemID           int64
	QuantityReceived int64
}

// DeleteInput removes a shipment that has not started receiving.
type DeleteInput struct {
	ShipmentID int64
	ActorID    int64
}

// ListFilter narrows a shipment listing. Zero values match everything.
type ListFilter struct {
	SupplierID int64
	Status     Status
	Page       int
	PerPage    int
}

func (f ListFilter) pagination(total int) shared.Pagination {
	return shared.NewPagination(f.Page, f.PerPage, total)
}

// Offset returns the row offset for the filter's page.
func (f ListFilter) Offset() int { return f.pagination(0).Offset() }

// Limit returns the capped page size.
func (f ListFilter) Limit() int { return f.pagination(0).PerPage }
