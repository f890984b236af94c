package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/keylock"
)

// tx stages writes until commit. Reads fall through to committed state.
type tx struct {
	s         *Store
	guard     *keylock.Guard
	entries   map[inventory.Key]inventory.StockEntry
	movements []inventory.MovementRecord
	shipments map[int64]inbound.Shipment
	orders    map[int64]outbound.Order

	deletedShipments map[int64]struct{}
	deletedOrders    map[int64]struct{}
}

var (
	_ inventory.TxRepository = (*tx)(nil)
	_ inbound.TxRepository   = (*tx)(nil)
	_ outbound.TxRepository  = (*tx)(nil)
)

// withTx runs fn in a transaction. Staged writes become visible in one step
// when fn succeeds; row locks are released only after that.
func (s *Store) withTx(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	guard, err := s.locks.Acquire(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()
	t := &tx{
		s:         s,
		guard:     guard,
		entries:   make(map[inventory.Key]inventory.StockEntry),
		shipments: make(map[int64]inbound.Shipment),
		orders:    make(map[int64]outbound.Order),

		deletedShipments: make(map[int64]struct{}),
		deletedOrders:    make(map[int64]struct{}),
	}
	if err := fn(t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range t.entries {
		s.entries[key] = entry
		s.entryKeys[entry.ID] = key
	}
	s.movements = append(s.movements, t.movements...)
	for id, shipment := range t.shipments {
		s.shipments[id] = shipment
	}
	for id, order := range t.orders {
		s.orders[id] = order
	}
	for id := range t.deletedShipments {
		delete(s.shipments, id)
	}
	for id := range t.deletedOrders {
		delete(s.orders, id)
	}
}

func (t *tx) Lock(ctx context.Context, set inventory.LockSet) error {
	keys := make([]string, 0, len(set.Locations)+len(set.Entries))
	for _, id := range set.Locations {
		keys = append(keys, locationLockKey(id))
	}
	for _, k := range set.Entries {
		keys = append(keys, entryLockKey(k))
	}
	if err := t.guard.Extend(ctx, keys...); err != nil {
		return fmt.Errorf("memstore: lock: %w", err)
	}
	return nil
}

func (t *tx) GetEntry(ctx context.Context, key inventory.Key) (inventory.StockEntry, error) {
	if entry, ok := t.entries[key]; ok {
		return entry, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	entry, ok := t.s.entries[key]
	if !ok {
		return inventory.StockEntry{}, inventory.ErrEntryNotFound
	}
	return entry, nil
}

func (t *tx) SaveEntry(ctx context.Context, entry inventory.StockEntry) (inventory.StockEntry, error) {
	if entry.ID == 0 {
		entry.ID = t.s.seq.entry.Add(1)
	}
	t.entries[entry.Key()] = entry
	return entry, nil
}

func (t *tx) ListEntriesByProduct(ctx context.Context, productID int64) ([]inventory.StockEntry, error) {
	merged := make(map[inventory.Key]inventory.StockEntry)
	t.s.mu.RLock()
	for key, entry := range t.s.entries {
		if key.ProductID == productID {
			merged[key] = entry
		}
	}
	t.s.mu.RUnlock()
	for key, entry := range t.entries {
		if key.ProductID == productID {
			merged[key] = entry
		}
	}
	out := make([]inventory.StockEntry, 0, len(merged))
	for _, entry := range merged {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (t *tx) LocationOccupancy(ctx context.Context, locationID int64) (int64, error) {
	var total int64
	t.s.mu.RLock()
	for key, entry := range t.s.entries {
		if key.LocationID != locationID {
			continue
		}
		if _, staged := t.entries[key]; staged {
			continue
		}
		total += entry.Quantity
	}
	t.s.mu.RUnlock()
	for key, entry := range t.entries {
		if key.LocationID == locationID {
			total += entry.Quantity
		}
	}
	return total, nil
}

func (t *tx) GetLocation(ctx context.Context, id int64) (inventory.Location, error) {
	return t.s.GetLocation(ctx, id)
}

func (t *tx) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return t.s.GetProduct(ctx, id)
}

func (t *tx) InsertMovement(ctx context.Context, rec inventory.MovementRecord) (int64, error) {
	rec.ID = t.s.seq.movement.Add(1)
	t.movements = append(t.movements, rec)
	return rec.ID, nil
}

func (t *tx) InsertShipment(ctx context.Context, shipment inbound.Shipment) (inbound.Shipment, error) {
	shipment.ID = t.s.seq.shipment.Add(1)
	shipment.Items = append([]inbound.Item(nil), shipment.Items...)
	for i := range shipment.Items {
		shipment.Items[i].ID = t.s.seq.shipmentItem.Add(1)
		shipment.Items[i].ShipmentID = shipment.ID
	}
	t.shipments[shipment.ID] = shipment
	return cloneShipment(shipment), nil
}

func (t *tx) GetShipmentForUpdate(ctx context.Context, id int64) (inbound.Shipment, error) {
	if err := t.guard.Extend(ctx, shipmentLockKey(id)); err != nil {
		return inbound.Shipment{}, fmt.Errorf("memstore: lock shipment %d: %w", id, err)
	}
	if _, gone := t.deletedShipments[id]; gone {
		return inbound.Shipment{}, inventory.ErrNotFound
	}
	if shipment, ok := t.shipments[id]; ok {
		return cloneShipment(shipment), nil
	}
	return t.s.GetShipment(ctx, id)
}

func (t *tx) UpdateShipment(ctx context.Context, shipment inbound.Shipment) error {
	if !t.guard.Holds(shipmentLockKey(shipment.ID)) {
		if _, ok := t.shipments[shipment.ID]; !ok {
			return fmt.Errorf("memstore: shipment %d updated without lock", shipment.ID)
		}
	}
	t.shipments[shipment.ID] = cloneShipment(shipment)
	return nil
}

func (t *tx) DeleteShipment(ctx context.Context, id int64) error {
	delete(t.shipments, id)
	t.deletedShipments[id] = struct{}{}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, order outbound.Order) (outbound.Order, error) {
	order.ID = t.s.seq.order.Add(1)
	order.Items = append([]outbound.Item(nil), order.Items...)
	for i := range order.Items {
		order.Items[i].ID = t.s.seq.orderItem.Add(1)
		order.Items[i].OrderID = order.ID
	}
	t.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id int64) (outbound.Order, error) {
	if err := t.guard.Extend(ctx, orderLockKey(id)); err != nil {
		return outbound.Order{}, fmt.Errorf("memstore: lock order %d: %w", id, err)
	}
	if _, gone := t.deletedOrders[id]; gone {
		return outbound.Order{}, inventory.ErrNotFound
	}
	if order, ok := t.orders[id]; ok {
		return cloneOrder(order), nil
	}
	return t.s.GetOrder(ctx, id)
}

func (t *tx) UpdateOrder(ctx context.Context, order outbound.Order) error {
	if !t.guard.Holds(orderLockKey(order.ID)) {
		if _, ok := t.orders[order.ID]; !ok {
			return fmt.Errorf("memstore: order %d updated without lock", order.ID)
		}
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *tx) DeleteOrder(ctx context.Context, id int64) error {
	delete(t.orders, id)
	t.deletedOrders[id] = struct{}{}
	return nil
}

// GetShipment loads a committed shipment.
func (s *Store) GetShipment(ctx context.Context, id int64) (inbound.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shipment, ok := s.shipments[id]
	if !ok {
		return inbound.Shipment{}, inventory.ErrNotFound
	}
	return cloneShipment(shipment), nil
}

// GetOrder loads a committed order.
func (s *Store) GetOrder(ctx context.Context, id int64) (outbound.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return outbound.Order{}, inventory.ErrNotFound
	}
	return cloneOrder(order), nil
}

// ListShipments pages through committed shipments ordered by id.
func (s *Store) ListShipments(ctx context.Context, filter inbound.ListFilter) ([]inbound.Shipment, int, error) {
	s.mu.RLock()
	out := []inbound.Shipment{}
	for _, shipment := range s.shipments {
		if filter.SupplierID != 0 && shipment.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Status != "" && shipment.Status != filter.Status {
			continue
		}
		out = append(out, cloneShipment(shipment))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, filter.Offset(), filter.Limit()), len(out), nil
}

// ListOrders pages through committed orders ordered by id.
func (s *Store) ListOrders(ctx context.Context, filter outbound.ListFilter) ([]outbound.Order, int, error) {
	name := strings.ToLower(strings.TrimSpace(filter.CustomerName))
	s.mu.RLock()
	out := []outbound.Order{}
	for _, order := range s.orders {
		if name != "" && !strings.Contains(strings.ToLower(order.CustomerName), name) {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, filter.Offset(), filter.Limit()), len(out), nil
}

func cloneShipment(s inbound.Shipment) inbound.Shipment {
	s.Items = append([]inbound.Item(nil), s.Items...)
	return s
}

func cloneOrder(o outbound.Order) outbound.Order {
	o.Items = append([]outbound.Item(nil), o.Items...)
	return o
}
