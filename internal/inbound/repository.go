package inbound

import (
	"context"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// TxRepository is the transactional contract for shipments. It shares the
// stock ledger's transaction.
type TxRepository interface {
	inventory.TxRepository
	InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error)
	// GetShipmentForUpdate loads a shipment with its items and locks the
	// shipment row for the rest of the transaction.
	GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error)
	UpdateShipment(ctx context.Context, shipment Shipment) error
	DeleteShipment(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	// ListShipments returns one page of shipments ordered by id, with items,
	// and the total number of matches.
	ListShipments(ctx context.Context, filter ListFilter) ([]Shipment, int, error)
}
