package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
)

// InventoryRepository serves the stock ledger from the store.
type InventoryRepository struct {
	s *Store
}

// InboundRepository serves shipments from the store.
type InboundRepository struct {
	s *Store
}

// OutboundRepository serves orders from the store.
type OutboundRepository struct {
	s *Store
}

var (
	_ inventory.RepositoryPort = (*InventoryRepository)(nil)
	_ inbound.RepositoryPort   = (*InboundRepository)(nil)
	_ outbound.RepositoryPort  = (*OutboundRepository)(nil)
)

// Inventory returns the stock ledger repository.
func (s *Store) Inventory() *InventoryRepository { return &InventoryRepository{s: s} }

// Inbound returns the shipment repository.
func (s *Store) Inbound() *InboundRepository { return &InboundRepository{s: s} }

// Outbound returns the order repository.
func (s *Store) Outbound() *OutboundRepository { return &OutboundRepository{s: s} }

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r *InventoryRepository) GetEntryByID(ctx context.Context, id int64) (inventory.StockEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	key, ok := r.s.entryKeys[id]
	if !ok {
		return inventory.StockEntry{}, fmt.Errorf("%w: stock entry %d", inventory.ErrNotFound, id)
	}
	return r.s.entries[key], nil
}

func (r *InventoryRepository) ListEntries(ctx context.Context, filter inventory.EntryFilter) ([]inventory.StockEntry, int, error) {
	r.s.mu.RLock()
	out := []inventory.StockEntry{}
	for key, entry := range r.s.entries {
		if filter.ProductID != 0 && key.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && key.LocationID != filter.LocationID {
			continue
		}
		out = append(out, entry)
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	total := len(out)
	if filter.Offset >= total {
		return []inventory.StockEntry{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *InventoryRepository) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.MovementRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []inventory.MovementRecord{}
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		rec := r.s.movements[i]
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && rec.LocationID != filter.LocationID {
			continue
		}
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Movements returns every committed movement record in commit order.
func (s *Store) Movements() []inventory.MovementRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inventory.MovementRecord(nil), s.movements...)
}

func (r *InboundRepository) WithTx(ctx context.Context, fn func(context.Context, inbound.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r *InboundRepository) GetShipment(ctx context.Context, id int64) (inbound.Shipment, error) {
	return r.s.GetShipment(ctx, id)
}

func (r *InboundRepository) ListShipments(ctx context.Context, filter inbound.ListFilter) ([]inbound.Shipment, int, error) {
	return r.s.ListShipments(ctx, filter)
}

func (r *OutboundRepository) WithTx(ctx context.Context, fn func(context.Context, outbound.TxRepository) error) error {
	return r.s.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r *OutboundRepository) GetOrder(ctx context.Context, id int64) (outbound.Order, error) {
	return r.s.GetOrder(ctx, id)
}

func (r *OutboundRepository) ListOrders(ctx context.Context, filter outbound.ListFilter) ([]outbound.Order, int, error) {
	return r.s.ListOrders(ctx, filter)
}
