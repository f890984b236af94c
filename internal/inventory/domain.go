package inventory

import (
	"fmt"
	"time"
)

// MovementKind enumerates the operations that write to the ledger.
type MovementKind string

const (
	// KindAdjust is a manual correction carrying a mandatory reason.
	KindAdjust MovementKind = "ADJUST"
	// KindMove is one half of a transfer between two locations.
	KindMove MovementKind = "MOVE"
	// KindReceive is stock arriving from an inbound shipment.
	KindReceive MovementKind = "RECEIVE"
	// KindPick earmarks stock for an outbound order line.
	KindPick MovementKind = "PICK"
	// KindShip consumes a reservation and removes the stock.
	KindShip MovementKind = "SHIP"
	// KindReserve is a manual hold outside any order.
	KindReserve MovementKind = "RESERVE"
	// KindRelease returns reserved stock to available.
	KindRelease MovementKind = "RELEASE"
)

// Key identifies a stock entry.
type Key struct {
	ProductID  int64 `json:"product_id"`
	LocationID int64 `json:"location_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.ProductID, k.LocationID)
}

// Less orders keys by product then location, the global lock order.
func (k Key) Less(other Key) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	return k.LocationID < other.LocationID
}

// StockEntry is the quantity of one product held at one location.
type StockEntry struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	LocationID       int64     `json:"location_id"`
	Quantity         int64     `json:"quantity"`
	ReservedQuantity int64     `json:"reserved_quantity"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Key returns the entry's composite key.
func (e StockEntry) Key() Key {
	return Key{ProductID: e.ProductID, LocationID: e.LocationID}
}

// Available is quantity not promised to any order.
func (e StockEntry) Available() int64 {
	return e.Quantity - e.ReservedQuantity
}

// Location is a storage slot with a unit capacity. Owned by master data.
type Location struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Capacity    int64  `json:"capacity"`
}

// Product is a stockable item. Owned by master data.
type Product struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	MinStockLevel int64  `json:"min_stock_level"`
}

// MovementRecord is the append-only log line written for every ledger change.
type MovementRecord struct {
	ID                int64        `json:"id"`
	Kind              MovementKind `json:"kind"`
	ProductID         int64        `json:"product_id"`
	LocationID        int64        `json:"location_id"`
	CounterLocationID int64        `json:"counter_location_id,omitempty"`
	QuantityDelta     int64        `json:"quantity_delta"`
	ReservedDelta     int64        `json:"reserved_delta"`
	QuantityAfter     int64        `json:"quantity_after"`
	ReservedAfter     int64        `json:"reserved_after"`
	Reason            string       `json:"reason,omitempty"`
	Reference         string       `json:"reference,omitempty"`
	LinkID            string       `json:"link_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// LockSet lists the rows a transaction locks before reading them.
type LockSet struct {
	Locations []int64
	Entries   []Key
}

// AdjustInput describes a manual stock correction.
type AdjustInput struct {
	ProductID      int64
	LocationID     int64
	QuantityChange int64
	Reason         string
	ActorID        int64
}

// MoveInput describes a transfer between two locations.
type MoveInput struct {
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       int64
	ActorID        int64
}

// ReservationInput describes a standalone reserve or release.
type ReservationInput struct {
	ProductID  int64
	LocationID int64
	Quantity   int64
	Reference  string
	ActorID    int64
}

// EntryFilter narrows inventory listings.
type EntryFilter struct {
	ProductID  int64
	LocationID int64
	Limit      int
	Offset     int
}

// MovementFilter narrows movement history.
type MovementFilter struct {
	ProductID  int64
	LocationID int64
	Since      time.Time
	Limit      int
}
