package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction. Row
// locks taken through TxRepository.Lock serialise conflicting writers.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// PgTx implements TxRepository on a pgx transaction. Other modules embed it
// to share the stock ledger inside their own transactions.
type PgTx struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction.
func NewTxRepository(tx pgx.Tx) *PgTx {
	return &PgTx{tx: tx}
}

// Tx exposes the underlying transaction.
func (r *PgTx) Tx() pgx.Tx { return r.tx }

// Lock takes FOR UPDATE row locks in the order given. Missing rows are
// skipped; existence is checked by the caller afterwards.
func (r *PgTx) Lock(ctx context.Context, set LockSet) error {
	for _, id := range set.Locations {
		if err := r.lockRow(ctx, `SELECT id FROM locations WHERE id=$1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("lock location %d: %w", id, err)
		}
	}
	for _, key := range set.Entries {
		if err := r.lockRow(ctx, `SELECT id FROM stock_entries WHERE product_id=$1 AND location_id=$2 FOR UPDATE`, key.ProductID, key.LocationID); err != nil {
			return fmt.Errorf("lock stock entry %s: %w", key, err)
		}
	}
	return nil
}

func (r *PgTx) lockRow(ctx context.Context, query string, args ...any) error {
	var id int64
	err := r.tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

const entryColumns = `id, product_id, location_id, quantity, reserved_quantity, last_updated`

func scanEntry(row pgx.Row) (StockEntry, error) {
	var e StockEntry
	err := row.Scan(&e.ID, &e.ProductID, &e.LocationID, &e.Quantity, &e.ReservedQuantity, &e.LastUpdated)
	return e, err
}

// GetEntry loads the entry for key.
func (r *PgTx) GetEntry(ctx context.Context, key Key) (StockEntry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE product_id=$1 AND location_id=$2`, key.ProductID, key.LocationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockEntry{}, ErrEntryNotFound
	}
	return e, err
}

// SaveEntry inserts or updates the entry and returns it with its id.
func (r *PgTx) SaveEntry(ctx context.Context, entry StockEntry) (StockEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_entries (product_id, location_id, quantity, reserved_quantity, last_updated)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (product_id, location_id) DO UPDATE SET quantity=EXCLUDED.quantity, reserved_quantity=EXCLUDED.reserved_quantity, last_updated=EXCLUDED.last_updated
RETURNING id`, entry.ProductID, entry.LocationID, entry.Quantity, entry.ReservedQuantity, entry.LastUpdated).Scan(&entry.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return StockEntry{}, fmt.Errorf("%w: %s rejected by %s", ErrInvariantViolation, entry.Key(), pgErr.ConstraintName)
	}
	if err != nil {
		return StockEntry{}, err
	}
	return entry, nil
}

// ListEntriesByProduct returns every entry of a product.
func (r *PgTx) ListEntriesByProduct(ctx context.Context, productID int64) ([]StockEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE product_id=$1 ORDER BY location_id`, productID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// LocationOccupancy sums the physical quantity stored at a location.
func (r *PgTx) LocationOccupancy(ctx context.Context, locationID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::bigint FROM stock_entries WHERE location_id=$1`, locationID).Scan(&total)
	return total, err
}

// GetLocation loads a location.
func (r *PgTx) GetLocation(ctx context.Context, id int64) (Location, error) {
	var loc Location
	err := r.tx.QueryRow(ctx, `SELECT id, code, COALESCE(description, ''), capacity FROM locations WHERE id=$1`, id).
		Scan(&loc.ID, &loc.Code, &loc.Description, &loc.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return loc, err
}

// GetProduct loads a product.
func (r *PgTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, sku, name, COALESCE(category, ''), min_stock_level FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.MinStockLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// InsertMovement appends a movement record.
func (r *PgTx) InsertMovement(ctx context.Context, rec MovementRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO movement_records (kind, product_id, location_id, counter_location_id, quantity_delta, reserved_delta, quantity_after, reserved_after, reason, reference, link_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		string(rec.Kind), rec.ProductID, rec.LocationID, nullInt(rec.CounterLocationID), rec.QuantityDelta, rec.ReservedDelta,
		rec.QuantityAfter, rec.ReservedAfter, nullString(rec.Reason), nullString(rec.Reference), nullString(rec.LinkID), rec.CreatedAt).Scan(&id)
	return id, err
}

// GetEntryByID loads one entry by surrogate id.
func (r *Repository) GetEntryByID(ctx context.Context, id int64) (StockEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockEntry{}, fmt.Errorf("%w: stock entry %d", ErrNotFound, id)
	}
	return e, err
}

// ListEntries pages through entries and reports the unpaged total.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, int, error) {
	where, args := entryWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM stock_entries%s ORDER BY product_id, location_id LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectEntries(rows)
	return entries, total, err
}

// ListMovements returns movement records newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	var conds []string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.LocationID != 0 {
		args = append(args, filter.LocationID)
		conds = append(conds, fmt.Sprintf("location_id=$%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, kind, product_id, location_id, COALESCE(counter_location_id, 0), quantity_delta, reserved_delta,
quantity_after, reserved_after, COALESCE(reason, ''), COALESCE(reference, ''), COALESCE(link_id, ''), created_at
FROM movement_records%s ORDER BY created_at DESC, id DESC LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []MovementRecord{}
	for rows.Next() {
		var rec MovementRecord
		var kind string
		if err := rows.Scan(&rec.ID, &kind, &rec.ProductID, &rec.LocationID, &rec.CounterLocationID, &rec.QuantityDelta, &rec.ReservedDelta,
			&rec.QuantityAfter, &rec.ReservedAfter, &rec.Reason, &rec.Reference, &rec.LinkID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Kind = MovementKind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func entryWhere(filter EntryFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.LocationID != 0 {
		args = append(args, filter.LocationID)
		conds = append(conds, fmt.Sprintf("location_id=$%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectEntries(rows pgx.Rows) ([]StockEntry, error) {
	defer rows.Close()
	entries := []StockEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
