package reporting

import (
	"context"
	"time"
)

// Snapshot reads ledger state as of one consistent point in time.
type Snapshot interface {
	ProductStock(ctx context.Context) ([]ProductStock, error)
	LocationUsage(ctx context.Context) ([]LocationUsage, error)
	// ProductLocations returns the product and its entries ordered by
	// location id. A missing product fails with ErrNotFound.
	ProductLocations(ctx context.Context, productID int64) (ProductStock, []LocationStock, error)
	// DailyMovements groups quantity deltas created at or after from by UTC day.
	DailyMovements(ctx context.Context, from time.Time) ([]DailyMovement, error)
}

// RepositoryPort opens read-only snapshots.
type RepositoryPort interface {
	WithSnapshot(ctx context.Context, fn func(context.Context, Snapshot) error) error
}
