package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTopN is the size of the top-products list when none is requested.
	DefaultTopN = 5
	// MaxTopN caps the top-products list.
	MaxTopN = 50
)

// Service derives read-only views from ledger state. It never mutates.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService wires a repository with an optional cache.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger, clock func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("github.com/odyssey-erp/odyssey-wms/internal/reporting"),
		now:    clock,
	}
}

// LowStock lists products whose total stock is below their minimum level,
// largest shortfall first.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	var out []LowStockItem
	err := s.read(ctx, "reporting.LowStock", func(ctx context.Context, snap Snapshot) error {
		products, err := snap.ProductStock(ctx)
		if err != nil {
			return err
		}
		out = lowStock(products)
		return nil
	})
	return out, err
}

// ProductRollup returns a product's stock across every location.
func (s *Service) ProductRollup(ctx context.Context, productID int64) (ProductRollup, error) {
	if productID <= 0 {
		return ProductRollup{}, fmt.Errorf("%w: product id required", ErrValidation)
	}
	var out ProductRollup
	err := s.read(ctx, "reporting.ProductRollup", func(ctx context.Context, snap Snapshot) error {
		product, locations, err := snap.ProductLocations(ctx, productID)
		if err != nil {
			return err
		}
		out = ProductRollup{ProductID: product.ProductID, SKU: product.SKU, Name: product.Name, Locations: []LocationStock{}}
		for _, loc := range locations {
			loc.Available = loc.Quantity - loc.ReservedQuantity
			out.Locations = append(out.Locations, loc)
			out.TotalQuantity += loc.Quantity
			out.TotalReserved += loc.ReservedQuantity
		}
		out.Available = out.TotalQuantity - out.TotalReserved
		return nil
	}, attribute.Int64("product_id", productID))
	return out, err
}

// Utilization reports capacity usage over all locations.
func (s *Service) Utilization(ctx context.Context) (Utilization, error) {
	var out Utilization
	err := s.read(ctx, "reporting.Utilization", func(ctx context.Context, snap Snapshot) error {
		locations, err := snap.LocationUsage(ctx)
		if err != nil {
			return err
		}
		out = utilization(locations)
		return nil
	})
	return out, err
}

// LocationCapacity reports how much of one location's capacity is in use.
func (s *Service) LocationCapacity(ctx context.Context, locationID int64) (LocationCapacity, error) {
	if locationID <= 0 {
		return LocationCapacity{}, fmt.Errorf("%w: location id required", ErrValidation)
	}
	var out LocationCapacity
	err := s.read(ctx, "reporting.LocationCapacity", func(ctx context.Context, snap Snapshot) error {
		locations, err := snap.LocationUsage(ctx)
		if err != nil {
			return err
		}
		for _, loc := range locations {
			if loc.LocationID != locationID {
				continue
			}
			out = LocationCapacity{
				LocationID:        loc.LocationID,
				Code:              loc.Code,
				TotalCapacity:     loc.Capacity,
				UsedCapacity:      loc.Occupied,
				AvailableCapacity: loc.Capacity - loc.Occupied,
			}
			return nil
		}
		return fmt.Errorf("%w: location %d", ErrNotFound, locationID)
	}, attribute.Int64("location_id", locationID))
	return out, err
}

// MovementSeries returns inbound and outbound totals for each of the last
// SeriesDays UTC days, oldest first, ending today.
func (s *Service) MovementSeries(ctx context.Context) ([]SeriesPoint, error) {
	var out []SeriesPoint
	err := s.read(ctx, "reporting.MovementSeries", func(ctx context.Context, snap Snapshot) error {
		var err error
		out, err = s.series(ctx, snap)
		return err
	})
	return out, err
}

// StockByCategory totals units per category, ordered by category name.
// Products that have never been stocked are left out.
func (s *Service) StockByCategory(ctx context.Context) ([]CategoryStock, error) {
	var out []CategoryStock
	err := s.read(ctx, "reporting.StockByCategory", func(ctx context.Context, snap Snapshot) error {
		products, err := snap.ProductStock(ctx)
		if err != nil {
			return err
		}
		out = byCategory(products)
		return nil
	})
	return out, err
}

// TopProducts ranks stocked products by total quantity. Ties go to the lower
// product id.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	limit, err := clampTopN(limit)
	if err != nil {
		return nil, err
	}
	var out []TopProduct
	err = s.read(ctx, "reporting.TopProducts", func(ctx context.Context, snap Snapshot) error {
		products, err := snap.ProductStock(ctx)
		if err != nil {
			return err
		}
		out = topProducts(products, limit)
		return nil
	}, attribute.Int("limit", limit))
	return out, err
}

// Summary returns the dashboard view. Concurrent callers share one build and
// the result is cached until a committed movement or master data create bumps the version.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "summary")
	if err != nil {
		s.logger.Warn("reporting cache unavailable", slog.Any("error", err))
		return s.BuildSummary(ctx)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
			return s.BuildSummary(ctx)
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// BuildSummary computes the dashboard view from one snapshot, bypassing the cache.
func (s *Service) BuildSummary(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.read(ctx, "reporting.BuildSummary", func(ctx context.Context, snap Snapshot) error {
		products, err := snap.ProductStock(ctx)
		if err != nil {
			return err
		}
		locations, err := snap.LocationUsage(ctx)
		if err != nil {
			return err
		}
		series, err := s.series(ctx, snap)
		if err != nil {
			return err
		}
		low := lowStock(products)
		out = Summary{
			TotalProducts:         len(products),
			LowStockProductsCount: len(low),
			StockByCategory:       byCategory(products),
			MovementsLast30Days:   series,
			TopProductsByStock:    topProducts(products, DefaultTopN),
			LowStockAlerts:        low,
			WarehouseUtilization:  utilization(locations),
			GeneratedAt:           s.now().UTC(),
		}
		for _, p := range products {
			out.TotalStockUnits += p.Quantity
		}
		for _, point := range series {
			out.TotalInbound30Days += point.Inbound
			out.TotalOutbound30Days += point.Outbound
		}
		return nil
	})
	return out, err
}

func (s *Service) read(ctx context.Context, operation string, fn func(context.Context, Snapshot) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	defer span.End()
	if err := s.repo.WithSnapshot(ctx, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Service) series(ctx context.Context, snap Snapshot) ([]SeriesPoint, error) {
	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(SeriesDays - 1))
	days, err := snap.DailyMovements(ctx, from)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]DailyMovement, len(days))
	for _, d := range days {
		key := startOfDay(d.Day).Format(time.DateOnly)
		agg := byDay[key]
		agg.Inbound += d.Inbound
		agg.Outbound += d.Outbound
		byDay[key] = agg
	}
	points := make([]SeriesPoint, 0, SeriesDays)
	for i := 0; i < SeriesDays; i++ {
		key := from.AddDate(0, 0, i).Format(time.DateOnly)
		d := byDay[key]
		points = append(points, SeriesPoint{Date: key, Inbound: d.Inbound, Outbound: d.Outbound})
	}
	return points, nil
}

func lowStock(products []ProductStock) []LowStockItem {
	out := []LowStockItem{}
	for _, p := range products {
		if p.Quantity >= p.MinStockLevel {
			continue
		}
		out = append(out, LowStockItem{
			ProductID:     p.ProductID,
			SKU:           p.SKU,
			Name:          p.Name,
			CurrentStock:  p.Quantity,
			MinStockLevel: p.MinStockLevel,
			Difference:    p.MinStockLevel - p.Quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Difference != out[j].Difference {
			return out[i].Difference > out[j].Difference
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func utilization(locations []LocationUsage) Utilization {
	var out Utilization
	for _, loc := range locations {
		out.TotalCapacity += loc.Capacity
		out.OccupiedUnits += loc.Occupied
	}
	out.AvailableCapacity = out.TotalCapacity - out.OccupiedUnits
	if out.TotalCapacity > 0 {
		pct := decimal.NewFromInt(out.OccupiedUnits).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(out.TotalCapacity)).
			Round(2)
		out.UtilizationPercentage = pct.InexactFloat64()
	}
	return out
}

func byCategory(products []ProductStock) []CategoryStock {
	totals := map[string]int64{}
	for _, p := range products {
		if p.EntryCount == 0 {
			continue
		}
		category := p.Category
		if category == "" {
			category = UncategorizedLabel
		}
		totals[category] += p.Quantity
	}
	out := make([]CategoryStock, 0, len(totals))
	for category, units := range totals {
		out = append(out, CategoryStock{Category: category, TotalUnits: units})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func topProducts(products []ProductStock, limit int) []TopProduct {
	out := []TopProduct{}
	for _, p := range products {
		if p.EntryCount == 0 {
			continue
		}
		out = append(out, TopProduct{ProductID: p.ProductID, SKU: p.SKU, Name: p.Name, TotalStock: p.Quantity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalStock != out[j].TotalStock {
			return out[i].TotalStock > out[j].TotalStock
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clampTopN(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must not be negative", ErrValidation)
	case limit == 0:
		return DefaultTopN, nil
	case limit > MaxTopN:
		return MaxTopN, nil
	}
	return limit, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
