package masterdata

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ErrDuplicate is returned when a location code or product SKU is already taken.
var ErrDuplicate = errors.New("masterdata: duplicate code")

// ProblemMappings renders master data errors as problem responses.
var ProblemMappings = append([]httpx.StatusMapping{
	{Err: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
}, inventory.ProblemMappings...)

// ListFilters contains common filtering options for list operations.
type ListFilters struct {
	Search   string
	Category string
	Page     int
	PerPage  int
}

// Offset returns the row offset for the filter's page.
func (f ListFilters) Offset() int {
	return shared.NewPagination(f.Page, f.PerPage, 0).Offset()
}

// Limit returns the capped page size.
func (f ListFilters) Limit() int {
	return shared.NewPagination(f.Page, f.PerPage, 0).PerPage
}

// Repository stores locations and products.
type Repository interface {
	ListLocations(ctx context.Context, filters ListFilters) ([]inventory.Location, int, error)
	GetLocation(ctx context.Context, id int64) (inventory.Location, error)
	GetLocationByCode(ctx context.Context, code string) (inventory.Location, error)
	CreateLocation(ctx context.Context, location inventory.Location) (inventory.Location, error)

	ListProducts(ctx context.Context, filters ListFilters) ([]inventory.Product, int, error)
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (inventory.Product, error)
	CreateProduct(ctx context.Context, product inventory.Product) (inventory.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}
