package masterdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ChangeHook runs after a location or product has been created.
type ChangeHook func(ctx context.Context)

// Service implements master data rules on top of a Repository.
type Service struct {
	repo  Repository
	hooks []ChangeHook
}

// NewService creates a new master data service
func NewService(repo Repository, hooks ...ChangeHook) *Service {
	return &Service{repo: repo, hooks: hooks}
}

func (s *Service) changed(ctx context.Context) {
	for _, hook := range s.hooks {
		hook(ctx)
	}
}

// Location operations
func (s *Service) ListLocations(ctx context.Context, filters ListFilters) ([]inventory.Location, shared.Pagination, error) {
	items, total, err := s.repo.ListLocations(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

func (s *Service) GetLocation(ctx context.Context, id int64) (inventory.Location, error) {
	if id <= 0 {
		return inventory.Location{}, fmt.Errorf("%w: invalid location ID", inventory.ErrValidation)
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) CreateLocation(ctx context.Context, location inventory.Location) (inventory.Location, error) {
	location.Code = strings.TrimSpace(location.Code)
	if err := validateLocation(location); err != nil {
		return inventory.Location{}, err
	}
	created, err := s.repo.CreateLocation(ctx, location)
	if err != nil {
		return inventory.Location{}, err
	}
	s.changed(ctx)
	return created, nil
}

// Product operations
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]inventory.Product, shared.Pagination, error) {
	items, total, err := s.repo.ListProducts(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	if id <= 0 {
		return inventory.Product{}, fmt.Errorf("%w: invalid product ID", inventory.ErrValidation)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, product inventory.Product) (inventory.Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	product.Name = strings.TrimSpace(product.Name)
	product.Category = strings.TrimSpace(product.Category)
	if err := validateProduct(product); err != nil {
		return inventory.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return inventory.Product{}, err
	}
	s.changed(ctx)
	return created, nil
}

// ListCategories returns the distinct non-empty product categories in order.
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func validateLocation(location inventory.Location) error {
	if location.Code == "" {
		return fmt.Errorf("%w: location code is required", inventory.ErrValidation)
	}
	if len(location.Code) > 50 {
		return fmt.Errorf("%w: location code must not exceed 50 characters", inventory.ErrValidation)
	}
	if location.Capacity <= 0 {
		return fmt.Errorf("%w: location capacity must be positive", inventory.ErrValidation)
	}
	return nil
}

func validateProduct(product inventory.Product) error {
	if product.SKU == "" {
		return fmt.Errorf("%w: product SKU is required", inventory.ErrValidation)
	}
	if product.Name == "" {
		return fmt.Errorf("%w: product name is required", inventory.ErrValidation)
	}
	if product.MinStockLevel < 0 {
		return fmt.Errorf("%w: minimum stock level cannot be negative", inventory.ErrValidation)
	}
	return nil
}
