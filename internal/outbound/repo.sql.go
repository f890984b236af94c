package outbound

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

// Repository persists orders in PostgreSQL.
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
		return errors.New("outbound repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PgTx: inventory.NewTxRepository(tx)})
	})
}

// GetOrder loads an order and its items without locking.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.pool, id, false)
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.Tx(), id, true)
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	tx := r.Tx()
	err := tx.QueryRow(ctx, `INSERT INTO outbound_orders (customer_name, status, created_at)
VALUES ($1,$2,$3) RETURNING id`, order.CustomerName, string(order.Status), order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return Order{}, err
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.QueryRow(ctx, `INSERT INTO outbound_order_items (order_id, product_id, location_id, quantity_ordered, quantity_picked)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, item.OrderID, item.ProductID, item.LocationID, item.QuantityOrdered, item.QuantityPicked).Scan(&item.ID); err != nil {
			return Order{}, err
		}
	}
	return order, nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, order Order) error {
	tx := r.Tx()
	if _, err := tx.Exec(ctx, `UPDATE outbound_orders SET status=$2, shipped_at=$3 WHERE id=$1`,
		order.ID, string(order.Status), order.ShippedAt); err != nil {
		return err
	}
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, `UPDATE outbound_order_items SET quantity_picked=$2 WHERE id=$1`, item.ID, item.QuantityPicked); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	tx := r.Tx()
	if _, err := tx.Exec(ctx, `DELETE FROM outbound_order_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `DELETE FROM outbound_orders WHERE id=$1`, id)
	return err
}

// ListOrders pages through orders matching the filter.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var conds []string
	var args []any
	if name := strings.TrimSpace(filter.CustomerName); name != "" {
		args = append(args, "%"+name+"%")
		conds = append(conds, fmt.Sprintf("customer_name ILIKE $%d", len(args)))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbound_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT id, customer_name, status, created_at, shipped_at
FROM outbound_orders%s ORDER BY id LIMIT %d OFFSET %d`, where, filter.Limit(), filter.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	orders := []Order{}
	index := map[int64]int{}
	ids := []int64{}
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.CustomerName, &status, &o.CreatedAt, &o.ShippedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		o.Status = Status(status)
		o.Items = []Item{}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return orders, total, nil
	}
	items, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, location_id, quantity_ordered, quantity_picked
FROM outbound_order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer items.Close()
	for items.Next() {
		var item Item
		if err := items.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.LocationID, &item.QuantityOrdered, &item.QuantityPicked); err != nil {
			return nil, 0, err
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, total, items.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrder(ctx context.Context, q querier, id int64, forUpdate bool) (Order, error) {
	query := `SELECT id, customer_name, status, created_at, shipped_at FROM outbound_orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var o Order
	var status string
	err := q.QueryRow(ctx, query, id).Scan(&o.ID, &o.CustomerName, &status, &o.CreatedAt, &o.ShippedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, inventory.ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, location_id, quantity_ordered, quantity_picked
FROM outbound_order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.LocationID, &item.QuantityOrdered, &item.QuantityPicked); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}
