// Package memstore is a process-local backend for every repository port of the
// service. Writers lock rows through keylock in the same global order the
// Postgres repositories use, stage their changes, and publish them atomically
// on commit. Readers see only committed state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/keylock"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Store holds all state in memory.
type Store struct {
	mu    sync.RWMutex
	locks *keylock.Manager
	now   func() time.Time

	locations     map[int64]inventory.Location
	locationCodes map[string]int64
	products      map[int64]inventory.Product
	productSKUs   map[string]int64
	entries       map[inventory.Key]inventory.StockEntry
	entryKeys     map[int64]inventory.Key
	movements     []inventory.MovementRecord
	shipments     map[int64]inbound.Shipment
	orders        map[int64]outbound.Order
	idempotency   map[string]idempotencyRecord
	audit         []shared.AuditLog

	seq sequences
}

type sequences struct {
	location     atomic.Int64
	product      atomic.Int64
	entry        atomic.Int64
	movement     atomic.Int64
	shipment     atomic.Int64
	shipmentItem atomic.Int64
	order        atomic.Int64
	orderItem    atomic.Int64
}

// New constructs an empty store. clock defaults to time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		locks:         keylock.New(),
		now:           clock,
		locations:     make(map[int64]inventory.Location),
		locationCodes: make(map[string]int64),
		products:      make(map[int64]inventory.Product),
		productSKUs:   make(map[string]int64),
		entries:       make(map[inventory.Key]inventory.StockEntry),
		entryKeys:     make(map[int64]inventory.Key),
		shipments:     make(map[int64]inbound.Shipment),
		orders:        make(map[int64]outbound.Order),
		idempotency:   make(map[string]idempotencyRecord),
	}
}

// Lock keys sort documents before locations before stock entries, matching
// the order in which services take them.
func shipmentLockKey(id int64) string { return fmt.Sprintf("doc:shipment:%020d", id) }
func orderLockKey(id int64) string    { return fmt.Sprintf("doc:order:%020d", id) }
func locationLockKey(id int64) string { return fmt.Sprintf("loc:%020d", id) }
func entryLockKey(k inventory.Key) string {
	return fmt.Sprintf("stock:%020d:%020d", k.ProductID, k.LocationID)
}

var _ masterdata.Repository = (*Store)(nil)

func (s *Store) ListLocations(ctx context.Context, filters masterdata.ListFilters) ([]inventory.Location, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []inventory.Location{}
	for _, l := range s.locations {
		if matches(filters.Search, l.Code, l.Description) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, filters), len(out), nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return inventory.Location{}, inventory.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetLocationByCode(ctx context.Context, code string) (inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.locationCodes[code]
	if !ok {
		return inventory.Location{}, inventory.ErrNotFound
	}
	return s.locations[id], nil
}

func (s *Store) CreateLocation(ctx context.Context, location inventory.Location) (inventory.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.locationCodes[location.Code]; taken {
		return inventory.Location{}, fmt.Errorf("%w: location %s", masterdata.ErrDuplicate, location.Code)
	}
	location.ID = s.seq.location.Add(1)
	s.locations[location.ID] = location
	s.locationCodes[location.Code] = location.ID
	return location, nil
}

func (s *Store) ListProducts(ctx context.Context, filters masterdata.ListFilters) ([]inventory.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []inventory.Product{}
	for _, p := range s.products {
		if filters.Category != "" && p.Category != filters.Category {
			continue
		}
		if matches(filters.Search, p.SKU, p.Name) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return page(out, filters), len(out), nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.productSKUs[sku]
	if !ok {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return s.products[id], nil
}

func (s *Store) CreateProduct(ctx context.Context, product inventory.Product) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.productSKUs[product.SKU]; taken {
		return inventory.Product{}, fmt.Errorf("%w: product %s", masterdata.ErrDuplicate, product.SKU)
	}
	product.ID = s.seq.product.Add(1)
	s.products[product.ID] = product
	s.productSKUs[product.SKU] = product.ID
	return product, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	seen := map[string]struct{}{}
	for _, p := range s.products {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func page[T any](items []T, filters masterdata.ListFilters) []T {
	return pageOf(items, filters.Offset(), filters.Limit())
}

func pageOf[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
