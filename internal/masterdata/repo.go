package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

// Location operations
func (r *repo) ListLocations(ctx context.Context, filters ListFilters) ([]inventory.Location, int, error) {
	where, args := searchClause(filters.Search, "code", "description")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT id, code, COALESCE(description, ''), capacity FROM locations%s ORDER BY code LIMIT %d OFFSET %d`,
		where, filters.Limit(), filters.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	locations := []inventory.Location{}
	for rows.Next() {
		var l inventory.Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Description, &l.Capacity); err != nil {
			return nil, 0, err
		}
		locations = append(locations, l)
	}
	return locations, total, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id int64) (inventory.Location, error) {
	return r.scanLocation(ctx, `WHERE id = $1`, id)
}

func (r *repo) GetLocationByCode(ctx context.Context, code string) (inventory.Location, error) {
	return r.scanLocation(ctx, `WHERE code = $1`, code)
}

func (r *repo) scanLocation(ctx context.Context, where string, arg any) (inventory.Location, error) {
	var l inventory.Location
	err := r.db.QueryRow(ctx, `SELECT id, code, COALESCE(description, ''), capacity FROM locations `+where, arg).
		Scan(&l.ID, &l.Code, &l.Description, &l.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Location{}, inventory.ErrNotFound
	}
	return l, err
}

func (r *repo) CreateLocation(ctx context.Context, location inventory.Location) (inventory.Location, error) {
	query := `INSERT INTO locations (code, description, capacity) VALUES ($1, NULLIF($2, ''), $3) RETURNING id`
	err := r.db.QueryRow(ctx, query, location.Code, location.Description, location.Capacity).Scan(&location.ID)
	if err != nil {
		return inventory.Location{}, duplicate(err)
	}
	return location, nil
}

// Product operations
func (r *repo) ListProducts(ctx context.Context, filters ListFilters) ([]inventory.Product, int, error) {
	where, args := searchClause(filters.Search, "sku", "name")
	if filters.Category != "" {
		args = append(args, filters.Category)
		if where == "" {
			where = " WHERE"
		} else {
			where += " AND"
		}
		where += fmt.Sprintf(" category = $%d", len(args))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT id, sku, name, COALESCE(category, ''), min_stock_level FROM products%s ORDER BY sku LIMIT %d OFFSET %d`,
		where, filters.Limit(), filters.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []inventory.Product{}
	for rows.Next() {
		var p inventory.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.MinStockLevel); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return r.scanProduct(ctx, `WHERE id = $1`, id)
}

func (r *repo) GetProductBySKU(ctx context.Context, sku string) (inventory.Product, error) {
	return r.scanProduct(ctx, `WHERE sku = $1`, sku)
}

func (r *repo) scanProduct(ctx context.Context, where string, arg any) (inventory.Product, error) {
	var p inventory.Product
	err := r.db.QueryRow(ctx, `SELECT id, sku, name, COALESCE(category, ''), min_stock_level FROM products `+where, arg).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.MinStockLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return p, err
}

func (r *repo) CreateProduct(ctx context.Context, product inventory.Product) (inventory.Product, error) {
	query := `INSERT INTO products (sku, name, category, min_stock_level) VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id`
	err := r.db.QueryRow(ctx, query, product.SKU, product.Name, product.Category, product.MinStockLevel).Scan(&product.ID)
	if err != nil {
		return inventory.Product{}, duplicate(err)
	}
	return product, nil
}

func (r *repo) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT category FROM products WHERE category IS NOT NULL AND category <> '' ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func searchClause(search string, columns ...string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " ILIKE $1"
	}
	return " WHERE (" + strings.Join(parts, " OR ") + ")", []any{"%" + search + "%"}
}

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
