package outbound

import (
	"context"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// TxRepository is the transactional contract for orders. It shares the stock
// ledger's transaction.
type TxRepository interface {
	inventory.TxRepository
	InsertOrder(ctx context.Context, order Order) (Order, error)
	// GetOrderForUpdate loads an order with its items and locks the order row
	// for the rest of the transaction.
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	DeleteOrder(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	// ListOrders returns one page of orders ordered by id, with items, and
	// the total number of matches.
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}
