package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository reads reporting snapshots from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithSnapshot runs fn inside a repeatable-read, read-only transaction so
// every query sees the same committed state.
func (r *Repository) WithSnapshot(ctx context.Context, fn func(context.Context, Snapshot) error) error {
	if r == nil {
		return errors.New("reporting repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, db.SnapshotTx, func(tx pgx.Tx) error {
		return fn(ctx, &snapshot{tx: tx})
	})
}

type snapshot struct {
	tx pgx.Tx
}

func (s *snapshot) ProductStock(ctx context.Context) ([]ProductStock, error) {
	rows, err := s.tx.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(p.category, ''), p.min_stock_level,
       COALESCE(SUM(se.quantity), 0)::bigint, COALESCE(SUM(se.reserved_quantity), 0)::bigint, COUNT(se.id)
FROM products p
LEFT JOIN stock_entries se ON se.product_id = p.id
GROUP BY p.id, p.sku, p.name, p.category, p.min_stock_level
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductStock{}
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.Category, &p.MinStockLevel, &p.Quantity, &p.Reserved, &p.EntryCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *snapshot) LocationUsage(ctx context.Context) ([]LocationUsage, error) {
	rows, err := s.tx.Query(ctx, `SELECT l.id, l.code, l.capacity, COALESCE(SUM(se.quantity), 0)::bigint
FROM locations l
LEFT JOIN stock_entries se ON se.location_id = l.id
GROUP BY l.id, l.code, l.capacity
ORDER BY l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LocationUsage{}
	for rows.Next() {
		var l LocationUsage
		if err := rows.Scan(&l.LocationID, &l.Code, &l.Capacity, &l.Occupied); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *snapshot) ProductLocations(ctx context.Context, productID int64) (ProductStock, []LocationStock, error) {
	var p ProductStock
	err := s.tx.QueryRow(ctx, `SELECT id, sku, name, COALESCE(category, ''), min_stock_level FROM products WHERE id=$1`, productID).
		Scan(&p.ProductID, &p.SKU, &p.Name, &p.Category, &p.MinStockLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, nil, ErrNotFound
	}
	if err != nil {
		return ProductStock{}, nil, err
	}
	rows, err := s.tx.Query(ctx, `SELECT se.location_id, l.code, se.quantity, se.reserved_quantity
FROM stock_entries se
JOIN locations l ON l.id = se.location_id
WHERE se.product_id=$1
ORDER BY se.location_id`, productID)
	if err != nil {
		return ProductStock{}, nil, err
	}
	defer rows.Close()
	locations := []LocationStock{}
	for rows.Next() {
		var loc LocationStock
		if err := rows.Scan(&loc.LocationID, &loc.LocationCode, &loc.Quantity, &loc.ReservedQuantity); err != nil {
			return ProductStock{}, nil, err
		}
		p.Quantity += loc.Quantity
		p.Reserved += loc.ReservedQuantity
		p.EntryCount++
		locations = append(locations, loc)
	}
	return p, locations, rows.Err()
}

func (s *snapshot) DailyMovements(ctx context.Context, from time.Time) ([]DailyMovement, error) {
	rows, err := s.tx.Query(ctx, `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
       COALESCE(SUM(quantity_delta) FILTER (WHERE quantity_delta > 0), 0)::bigint,
       COALESCE(-SUM(quantity_delta) FILTER (WHERE quantity_delta < 0), 0)::bigint
FROM movement_records
WHERE created_at >= $1
GROUP BY day
ORDER BY day`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyMovement{}
	for rows.Next() {
		var d DailyMovement
		if err := rows.Scan(&d.Day, &d.Inbound, &d.Outbound); err != nil {
			return nil, err
		}
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, d)
	}
	return out, rows.Err()
}
