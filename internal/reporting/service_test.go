package reporting

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	products      []ProductStock
	locations     []LocationUsage
	rollup        map[int64][]LocationStock
	days          []DailyMovement
	dailyFrom     time.Time
	snapshotCalls int
}

func (m *mockRepo) WithSnapshot(ctx context.Context, fn func(context.Context, Snapshot) error) error {
	m.snapshotCalls++
	return fn(ctx, m)
}

func (m *mockRepo) ProductStock(ctx context.Context) ([]ProductStock, error) {
	return m.products, nil
}

func (m *mockRepo) LocationUsage(ctx context.Context) ([]LocationUsage, error) {
	return m.locations, nil
}

func (m *mockRepo) ProductLocations(ctx context.Context, productID int64) (ProductStock, []LocationStock, error) {
	for _, p := range m.products {
		if p.ProductID == productID {
			return p, m.rollup[productID], nil
		}
	}
	return ProductStock{}, nil, ErrNotFound
}

func (m *mockRepo) DailyMovements(ctx context.Context, from time.Time) ([]DailyMovement, error) {
	m.dailyFrom = from
	return m.days, nil
}

var testNow = time.Date(2026, 5, 20, 15, 4, 5, 0, time.UTC)

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(repo, cache, nil, func() time.Time { return testNow }), cache, mr
}

func TestUtilizationTwoLocations(t *testing.T) {
	repo := &mockRepo{locations: []LocationUsage{
		{LocationID: 1, Code: "A", Capacity: 100, Occupied: 40},
		{LocationID: 2, Code: "B", Capacity: 50, Occupied: 50},
	}}
	svc, _, _ := newTestService(t, repo)

	util, err := svc.Utilization(context.Background())
	require.NoError(t, err)
	require.Equal(t, Utilization{TotalCapacity: 150, OccupiedUnits: 90, UtilizationPercentage: 60.0, AvailableCapacity: 60}, util)
}

func TestUtilizationRoundsAndHandlesZeroCapacity(t *testing.T) {
	require.Equal(t, 33.33, utilization([]LocationUsage{{Capacity: 3, Occupied: 1}}).UtilizationPercentage)
	require.Equal(t, 66.67, utilization([]LocationUsage{{Capacity: 3, Occupied: 2}}).UtilizationPercentage)
	require.Equal(t, 0.0, utilization(nil).UtilizationPercentage)
}

func TestLowStockOrdering(t *testing.T) {
	repo := &mockRepo{products: []ProductStock{
		{ProductID: 1, SKU: "A", MinStockLevel: 10, Quantity: 12, EntryCount: 1},
		{ProductID: 2, SKU: "B", MinStockLevel: 10, Quantity: 5, EntryCount: 1},
		{ProductID: 3, SKU: "C", MinStockLevel: 20, Quantity: 15, EntryCount: 2},
		{ProductID: 4, SKU: "D", MinStockLevel: 8},
		{ProductID: 5, SKU: "E", MinStockLevel: 0},
	}}
	svc, _, _ := newTestService(t, repo)

	items, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, int64(4), items[0].ProductID)
	require.Equal(t, int64(8), items[0].Difference)
	require.Equal(t, int64(0), items[0].CurrentStock)
	require.Equal(t, []int64{2, 3}, []int64{items[1].ProductID, items[2].ProductID})
	require.Equal(t, int64(5), items[1].Difference)
}

func TestTopProductsBreaksTiesByID(t *testing.T) {
	repo := &mockRepo{products: []ProductStock{
		{ProductID: 7, Quantity: 30, EntryCount: 1},
		{ProductID: 3, Quantity: 30, EntryCount: 1},
		{ProductID: 5, Quantity: 50, EntryCount: 2},
		{ProductID: 1, Quantity: 0},
		{ProductID: 2, Quantity: 10, EntryCount: 1},
	}}
	svc, _, _ := newTestService(t, repo)

	top, err := svc.TopProducts(context.Background(), 3)
	require.NoError(t, err)
	ids := []int64{}
	for _, p := range top {
		ids = append(ids, p.ProductID)
	}
	require.Equal(t, []int64{5, 3, 7}, ids)

	_, err = svc.TopProducts(context.Background(), -1)
	require.ErrorIs(t, err, ErrValidation)

	all, err := svc.TopProducts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestStockByCategoryBucketsUncategorized(t *testing.T) {
	repo := &mockRepo{products: []ProductStock{
		{ProductID: 1, Category: "Tools", Quantity: 5, EntryCount: 1},
		{ProductID: 2, Category: "", Quantity: 7, EntryCount: 2},
		{ProductID: 3, Category: "Tools", Quantity: 1, EntryCount: 1},
		{ProductID: 4, Category: "Apparel", Quantity: 2, EntryCount: 1},
		{ProductID: 5, Category: "Garden"},
		{ProductID: 6, Category: "Apparel", EntryCount: 1},
	}}
	svc, _, _ := newTestService(t, repo)

	cats, err := svc.StockByCategory(context.Background())
	require.NoError(t, err)
	require.Equal(t, []CategoryStock{
		{Category: "Apparel", TotalUnits: 2},
		{Category: "Tools", TotalUnits: 6},
		{Category: UncategorizedLabel, TotalUnits: 7},
	}, cats)
}

func TestLocationCapacity(t *testing.T) {
	repo := &mockRepo{locations: []LocationUsage{
		{LocationID: 1, Code: "A", Capacity: 100, Occupied: 40},
		{LocationID: 2, Code: "B", Capacity: 50},
	}}
	svc, _, _ := newTestService(t, repo)
	ctx := context.Background()

	got, err := svc.LocationCapacity(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, LocationCapacity{LocationID: 1, Code: "A", TotalCapacity: 100, UsedCapacity: 40, AvailableCapacity: 60}, got)

	got, err = svc.LocationCapacity(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(50), got.AvailableCapacity)

	_, err = svc.LocationCapacity(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.LocationCapacity(ctx, 0)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMovementSeriesZeroFillsThirtyDays(t *testing.T) {
	today := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{days: []DailyMovement{
		{Day: today, Inbound: 12, Outbound: 3},
		{Day: today.AddDate(0, 0, -29), Inbound: 4},
	}}
	svc, _, _ := newTestService(t, repo)

	series, err := svc.MovementSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, SeriesDays)
	require.Equal(t, today.AddDate(0, 0, -29), repo.dailyFrom)
	require.Equal(t, SeriesPoint{Date: "2026-04-21", Inbound: 4}, series[0])
	require.Equal(t, SeriesPoint{Date: "2026-05-20", Inbound: 12, Outbound: 3}, series[29])
	require.Equal(t, SeriesPoint{Date: "2026-05-01"}, series[10])
}

func TestProductRollup(t *testing.T) {
	repo := &mockRepo{
		products: []ProductStock{{ProductID: 9, SKU: "SKU-9", Name: "Widget"}},
		rollup: map[int64][]LocationStock{9: {
			{LocationID: 1, LocationCode: "A", Quantity: 20, ReservedQuantity: 5},
			{LocationID: 2, LocationCode: "B", Quantity: 7},
		}},
	}
	svc, _, _ := newTestService(t, repo)

	rollup, err := svc.ProductRollup(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(27), rollup.TotalQuantity)
	require.Equal(t, int64(5), rollup.TotalReserved)
	require.Equal(t, int64(22), rollup.Available)
	require.Equal(t, int64(15), rollup.Locations[0].Available)

	_, err = svc.ProductRollup(context.Background(), 10)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSummaryIsCachedUntilBump(t *testing.T) {
	repo := &mockRepo{
		products:  []ProductStock{{ProductID: 1, Quantity: 10, MinStockLevel: 20, EntryCount: 1}},
		locations: []LocationUsage{{LocationID: 1, Capacity: 100, Occupied: 10}},
		days:      []DailyMovement{{Day: testNow, Inbound: 10}},
	}
	svc, cache, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.snapshotCalls)
	require.Equal(t, 1, first.TotalProducts)
	require.Equal(t, int64(10), first.TotalStockUnits)
	require.Equal(t, 1, first.LowStockProductsCount)
	require.Equal(t, int64(10), first.TotalInbound30Days)
	require.Equal(t, 10.0, first.WarehouseUtilization.UtilizationPercentage)
	require.Equal(t, testNow, first.GeneratedAt)

	repo.products[0].Quantity = 25
	cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.snapshotCalls)
	require.Equal(t, int64(10), cached.TotalStockUnits)

	require.NoError(t, cache.Bump(ctx))
	fresh, err := svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.snapshotCalls)
	require.Equal(t, int64(25), fresh.TotalStockUnits)
	require.Zero(t, fresh.LowStockProductsCount)
}

func TestCacheVersionInitialises(t *testing.T) {
	_, cache, mr := newTestService(t, &mockRepo{})
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	require.NoError(t, cache.Bump(ctx))
	raw, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	require.Equal(t, "2", raw)

	key, err := cache.BuildKey(ctx, "summary")
	require.NoError(t, err)
	require.Equal(t, "reporting:summary:2", key)
}

func TestSummaryWithoutCache(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, nil, func() time.Time { return testNow })

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.MovementsLast30Days, SeriesDays)
	require.Empty(t, summary.LowStockAlerts)
	require.NotNil(t, summary.TopProductsByStock)
}

// failAfterBuild breaks Redis once the snapshot has been read, so the
// summary write fails after the cache key was resolved.
type failAfterBuild struct {
	*mockRepo
	mr *miniredis.Miniredis
}

func (f failAfterBuild) WithSnapshot(ctx context.Context, fn func(context.Context, Snapshot) error) error {
	err := f.mockRepo.WithSnapshot(ctx, fn)
	f.mr.SetError("LOADING redis is loading")
	return err
}

func TestSummarySurvivesCacheWriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &mockRepo{products: []ProductStock{{ProductID: 1, Quantity: 3, EntryCount: 1}}}
	svc := NewService(failAfterBuild{mockRepo: repo, mr: mr}, NewCache(client, time.Minute), nil, func() time.Time { return testNow })

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.TotalStockUnits)
	require.Equal(t, 1, repo.snapshotCalls)
}

func TestFetchJSONTreatsReadFailureAsMiss(t *testing.T) {
	_, cache, mr := newTestService(t, &mockRepo{})
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "summary")
	require.NoError(t, err)

	mr.SetError("LOADING redis is loading")
	var got map[string]int
	calls := 0
	err = cache.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
		calls++
		return map[string]int{"units": 9}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 9, got["units"])

	mr.SetError("")
	err = cache.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
		calls++
		return nil, ErrValidation
	})
	require.ErrorIs(t, err, ErrValidation)
}
