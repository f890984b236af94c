package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists shipments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*inventory.PgTx
}

// WithTx executes the callback inside one write transaction shared with the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inbound repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PgTx: inventory.NewTxRepository(tx)})
	})
}

// GetShipment loads a shipment and its items without locking.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return loadShipment(ctx, r.pool, id, false)
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	return loadShipment(ctx, r.Tx(), id, true)
}

func (r *txRepository) InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error) {
	tx := r.Tx()
	err := tx.QueryRow(ctx, `INSERT INTO inbound_shipments (supplier_id, status, expected_at, created_at)
VALUES ($1,$2,$3,$4) RETURNING id`, shipment.SupplierID, string(shipment.Status), shipment.ExpectedAt, shipment.CreatedAt).Scan(&shipment.ID)
	if err != nil {
		return Shipment{}, err
	}
	for i := range shipment.Items {
		item := &shipment.Items[i]
		item.ShipmentID = shipment.ID
		if err := tx.QueryRow(ctx, `INSERT INTO inbound_shipment_items (shipment_id, product_id, location_id, quantity_expected, quantity_received)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, item.ShipmentID, item.ProductID, item.LocationID, item.QuantityExpected, item.QuantityReceived).Scan(&item.ID); err != nil {
			return Shipment{}, err
		}
	}
	return shipment, nil
}

func (r *txRepository) UpdateShipment(ctx context.Context, shipment Shipment) error {
	tx := r.Tx()
	if _, err := tx.Exec(ctx, `UPDATE inbound_shipments SET status=$2, received_at=$3 WHERE id=$1`,
		shipment.ID, string(shipment.Status), shipment.ReceivedAt); err != nil {
		return err
	}
	for _, item := range shipment.Items {
		if _, err := tx.Exec(ctx, `UPDATE inbound_shipment_items SET quantity_received=$2 WHERE id=$1`, item.ID, item.QuantityReceived); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DeleteShipment(ctx context.Context, id int64) error {
	tx := r.Tx()
	if _, err := tx.Exec(ctx, `DELETE FROM inbound_shipment_items WHERE shipment_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `DELETE FROM inbound_shipments WHERE id=$1`, id)
	return err
}

// ListShipments pages through shipments matching the filter.
func (r *Repository) ListShipments(ctx context.Context, filter ListFilter) ([]Shipment, int, error) {
	var conds []string
	var args []any
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		conds = append(conds, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inbound_shipments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT id, supplier_id, status, expected_at, received_at, created_at
FROM inbound_shipments%s ORDER BY id LIMIT %d OFFSET %d`, where, filter.Limit(), filter.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	shipments := []Shipment{}
	index := map[int64]int{}
	ids := []int64{}
	for rows.Next() {
		var s Shipment
		var status string
		if err := rows.Scan(&s.ID, &s.SupplierID, &status, &s.ExpectedAt, &s.ReceivedAt, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		s.Status = Status(status)
		s.Items = []Item{}
		index[s.ID] = len(shipments)
		ids = append(ids, s.ID)
		shipments = append(shipments, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return shipments, total, nil
	}
	items, err := r.pool.Query(ctx, `SELECT id, shipment_id, product_id, location_id, quantity_expected, quantity_received
FROM inbound_shipment_items WHERE shipment_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer items.Close()
	for items.Next() {
		var item Item
		if err := items.Scan(&item.ID, &item.ShipmentID, &item.ProductID, &item.LocationID, &item.QuantityExpected, &item.QuantityReceived); err != nil {
			return nil, 0, err
		}
		i := index[item.ShipmentID]
		shipments[i].Items = append(shipments[i].Items, item)
	}
	return shipments, total, items.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadShipment(ctx context.Context, q querier, id int64, forUpdate bool) (Shipment, error) {
	query := `SELECT id, supplier_id, status, expected_at, received_at, created_at FROM inbound_shipments WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var s Shipment
	var status string
	err := q.QueryRow(ctx, query, id).Scan(&s.ID, &s.SupplierID, &status, &s.ExpectedAt, &s.ReceivedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, inventory.ErrNotFound
	}
	if err != nil {
		return Shipment{}, err
	}
	s.Status = Status(status)
	rows, err := q.Query(ctx, `SELECT id, shipment_id, product_id, location_id, quantity_expected, quantity_received
FROM inbound_shipment_items WHERE shipment_id=$1 ORDER BY id`, id)
	if err != nil {
		return Shipment{}, err
	}
	defer rows.Close()
	s.Items = []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ShipmentID, &item.ProductID, &item.LocationID, &item.QuantityExpected, &item.QuantityReceived); err != nil {
			return Shipment{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}
