package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
)

var _ reporting.RepositoryPort = (*Store)(nil)

// WithSnapshot holds the read lock for the whole callback, so every query in
// fn sees the same committed state.
func (s *Store) WithSnapshot(ctx context.Context, fn func(context.Context, reporting.Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, snapshot{s: s})
}

// snapshot reads store maps directly; the caller already holds the read lock.
type snapshot struct {
	s *Store
}

func (v snapshot) ProductStock(ctx context.Context) ([]reporting.ProductStock, error) {
	byProduct := make(map[int64]*reporting.ProductStock, len(v.s.products))
	out := make([]reporting.ProductStock, 0, len(v.s.products))
	for _, p := range v.s.products {
		out = append(out, reporting.ProductStock{
			ProductID:     p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			Category:      p.Category,
			MinStockLevel: p.MinStockLevel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	for i := range out {
		byProduct[out[i].ProductID] = &out[i]
	}
	for key, entry := range v.s.entries {
		p, ok := byProduct[key.ProductID]
		if !ok {
			continue
		}
		p.Quantity += entry.Quantity
		p.Reserved += entry.ReservedQuantity
		p.EntryCount++
	}
	return out, nil
}

func (v snapshot) LocationUsage(ctx context.Context) ([]reporting.LocationUsage, error) {
	occupied := make(map[int64]int64, len(v.s.locations))
	for key, entry := range v.s.entries {
		occupied[key.LocationID] += entry.Quantity
	}
	out := make([]reporting.LocationUsage, 0, len(v.s.locations))
	for _, l := range v.s.locations {
		out = append(out, reporting.LocationUsage{
			LocationID: l.ID,
			Code:       l.Code,
			Capacity:   l.Capacity,
			Occupied:   occupied[l.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (v snapshot) ProductLocations(ctx context.Context, productID int64) (reporting.ProductStock, []reporting.LocationStock, error) {
	p, ok := v.s.products[productID]
	if !ok {
		return reporting.ProductStock{}, nil, reporting.ErrNotFound
	}
	stock := reporting.ProductStock{
		ProductID:     p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Category:      p.Category,
		MinStockLevel: p.MinStockLevel,
	}
	locations := []reporting.LocationStock{}
	for key, entry := range v.s.entries {
		if key.ProductID != productID {
			continue
		}
		locations = append(locations, reporting.LocationStock{
			LocationID:       key.LocationID,
			LocationCode:     v.s.locations[key.LocationID].Code,
			Quantity:         entry.Quantity,
			ReservedQuantity: entry.ReservedQuantity,
		})
		stock.Quantity += entry.Quantity
		stock.Reserved += entry.ReservedQuantity
		stock.EntryCount++
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].LocationID < locations[j].LocationID })
	return stock, locations, nil
}

func (v snapshot) DailyMovements(ctx context.Context, from time.Time) ([]reporting.DailyMovement, error) {
	byDay := map[time.Time]*reporting.DailyMovement{}
	for _, rec := range v.s.movements {
		if rec.CreatedAt.Before(from) {
			continue
		}
		y, m, d := rec.CreatedAt.UTC().Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		agg, ok := byDay[day]
		if !ok {
			agg = &reporting.DailyMovement{Day: day}
			byDay[day] = agg
		}
		switch {
		case rec.QuantityDelta > 0:
			agg.Inbound += rec.QuantityDelta
		case rec.QuantityDelta < 0:
			agg.Outbound -= rec.QuantityDelta
		}
	}
	out := make([]reporting.DailyMovement, 0, len(byDay))
	for _, agg := range byDay {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
