package inventory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	locations map[int64]Location
	products  map[int64]Product
	entries   map[Key]StockEntry
	movements []MovementRecord
	nextID    int64
}

type memoryTx struct {
	repo      *memoryRepo
	entries   map[Key]StockEntry
	movements []MovementRecord
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		locations: make(map[int64]Location),
		products:  make(map[int64]Product),
		entries:   make(map[Key]StockEntry),
	}
}

func (r *memoryRepo) addLocation(id, capacity int64) {
	r.locations[id] = Location{ID: id, Code: "LOC-" + strconv.FormatInt(id, 10), Capacity: capacity}
}

func (r *memoryRepo) addProduct(id int64) {
	r.products[id] = Product{ID: id, SKU: "SKU", Name: "Product"}
}

func (r *memoryRepo) seed(productID, locationID, quantity, reserved int64) {
	r.nextID++
	r.entries[Key{ProductID: productID, LocationID: locationID}] = StockEntry{
		ID: r.nextID, ProductID: productID, LocationID: locationID, Quantity: quantity, ReservedQuantity: reserved,
	}
}

func (r *memoryRepo) entry(productID, locationID int64) StockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[Key{ProductID: productID, LocationID: locationID}]
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, entries: make(map[Key]StockEntry, len(r.entries)), nextID: r.nextID}
	for k, v := range r.entries {
		tx.entries[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.entries = tx.entries
	r.movements = append(r.movements, tx.movements...)
	r.nextID = tx.nextID
	return nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []StockEntry{}
	for _, e := range r.entries {
		if filter.ProductID != 0 && e.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && e.LocationID != filter.LocationID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	total := len(out)
	if filter.Offset >= total {
		return []StockEntry{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) GetEntryByID(ctx context.Context, id int64) (StockEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return StockEntry{}, ErrNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []MovementRecord{}
	for i := len(r.movements) - 1; i >= 0; i-- {
		rec := r.movements[i]
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (tx *memoryTx) Lock(ctx context.Context, set LockSet) error { return nil }

func (tx *memoryTx) GetEntry(ctx context.Context, key Key) (StockEntry, error) {
	if e, ok := tx.entries[key]; ok {
		return e, nil
	}
	return StockEntry{}, ErrEntryNotFound
}

func (tx *memoryTx) SaveEntry(ctx context.Context, entry StockEntry) (StockEntry, error) {
	if entry.ID == 0 {
		tx.nextID++
		entry.ID = tx.nextID
	}
	tx.entries[entry.Key()] = entry
	return entry, nil
}

func (tx *memoryTx) ListEntriesByProduct(ctx context.Context, productID int64) ([]StockEntry, error) {
	out := []StockEntry{}
	for _, e := range tx.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) LocationOccupancy(ctx context.Context, locationID int64) (int64, error) {
	var total int64
	for _, e := range tx.entries {
		if e.LocationID == locationID {
			total += e.Quantity
		}
	}
	return total, nil
}

func (tx *memoryTx) GetLocation(ctx context.Context, id int64) (Location, error) {
	if loc, ok := tx.repo.locations[id]; ok {
		return loc, nil
	}
	return Location{}, ErrNotFound
}

func (tx *memoryTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	if p, ok := tx.repo.products[id]; ok {
		return p, nil
	}
	return Product{}, ErrNotFound
}

func (tx *memoryTx) InsertMovement(ctx context.Context, rec MovementRecord) (int64, error) {
	rec.ID = int64(len(tx.repo.movements) + len(tx.movements) + 1)
	tx.movements = append(tx.movements, rec)
	return rec.ID, nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, hooks ...MovementHook) *Service {
	return NewService(repo, ServiceConfig{Hooks: hooks, Clock: func() time.Time { return fixedNow }})
}

func TestAdjustDecreaseAppendsMovement(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 500)
	repo.addProduct(1)
	repo.seed(1, 1, 100, 0)
	svc := newTestService(repo)

	entry, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: -30, Reason: "damage"})
	require.NoError(t, err)
	require.Equal(t, int64(70), entry.Quantity)
	require.Equal(t, int64(0), entry.ReservedQuantity)
	require.Equal(t, fixedNow, entry.LastUpdated)

	require.Len(t, repo.movements, 1)
	rec := repo.movements[0]
	require.Equal(t, KindAdjust, rec.Kind)
	require.Equal(t, int64(-30), rec.QuantityDelta)
	require.Equal(t, int64(70), rec.QuantityAfter)
	require.Equal(t, "damage", rec.Reason)
}

func TestAdjustOverCapacityLeavesStateUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 90, 0)
	svc := newTestService(repo)

	_, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 20, Reason: "count"})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	var v *Violation
	require.True(t, errors.As(err, &v))
	require.Equal(t, int64(10), v.Limit)
	require.Equal(t, int64(90), repo.entry(1, 1).Quantity)
	require.Empty(t, repo.movements)
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 5, 0)
	svc := newTestService(repo)

	_, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: -6, Reason: "shrinkage"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(5), repo.entry(1, 1).Quantity)
}

func TestAdjustBelowReservedIsInvariantViolation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 10, 8)
	svc := newTestService(repo)

	_, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: -5, Reason: "damage"})
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.Equal(t, int64(10), repo.entry(1, 1).Quantity)
}

func TestAdjustValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 0, Reason: "x"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 1, Reason: "  "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Adjust(ctx, AdjustInput{ProductID: 9, LocationID: 1, QuantityChange: 1, Reason: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 9, QuantityChange: 1, Reason: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustCreatesEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	svc := newTestService(repo)

	entry, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 40, Reason: "opening balance"})
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Equal(t, int64(40), entry.Quantity)

	got, err := svc.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry, got)
}

func TestMoveRejectsReservedStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addLocation(2, 100)
	repo.addProduct(2)
	repo.seed(2, 1, 50, 10)
	svc := newTestService(repo)

	_, err := svc.Move(context.Background(), MoveInput{ProductID: 2, FromLocationID: 1, ToLocationID: 2, Quantity: 45})
	require.ErrorIs(t, err, ErrInsufficientAvailable)
	var v *Violation
	require.True(t, errors.As(err, &v))
	require.Equal(t, int64(40), v.Limit)

	src := repo.entry(2, 1)
	require.Equal(t, int64(50), src.Quantity)
	require.Equal(t, int64(10), src.ReservedQuantity)
	require.Zero(t, repo.entry(2, 2).ID)
	require.Empty(t, repo.movements)
}

func TestMoveTransfersAndLinksRecords(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addLocation(2, 100)
	repo.addProduct(2)
	repo.seed(2, 1, 50, 10)
	svc := newTestService(repo)

	res, err := svc.Move(context.Background(), MoveInput{ProductID: 2, FromLocationID: 1, ToLocationID: 2, Quantity: 40})
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Source.Quantity)
	require.Equal(t, int64(10), res.Source.ReservedQuantity)
	require.Equal(t, int64(40), res.Destination.Quantity)

	require.Len(t, repo.movements, 2)
	out, in := repo.movements[0], repo.movements[1]
	require.Equal(t, KindMove, out.Kind)
	require.Equal(t, int64(-40), out.QuantityDelta)
	require.Equal(t, int64(2), out.CounterLocationID)
	require.Equal(t, int64(40), in.QuantityDelta)
	require.Equal(t, int64(1), in.CounterLocationID)
	require.NotEmpty(t, out.LinkID)
	require.Equal(t, out.LinkID, in.LinkID)
}

func TestMoveRejectsInvalidRequests(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addLocation(2, 10)
	repo.addProduct(1)
	repo.seed(1, 1, 50, 0)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrInvalidMove)

	_, err = svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidMove)

	_, err = svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 11})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, int64(50), repo.entry(1, 1).Quantity)
}

func TestAdjustThereAndBackRestoresQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 12, 4)
	svc := newTestService(repo)
	ctx := context.Background()
	before := repo.entry(1, 1)

	for _, n := range []int64{1, 7, 88} {
		_, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: n, Reason: "recount"})
		require.NoError(t, err)
		entry, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: -n, Reason: "recount"})
		require.NoError(t, err)
		require.Equal(t, before.Quantity, entry.Quantity)
		require.Equal(t, before.ReservedQuantity, entry.ReservedQuantity)
	}
	require.Len(t, repo.movements, 6)
	for i := 0; i < len(repo.movements); i += 2 {
		require.Equal(t, -repo.movements[i].QuantityDelta, repo.movements[i+1].QuantityDelta)
		require.Equal(t, before.Quantity, repo.movements[i+1].QuantityAfter)
	}
}

func TestAdjustDownToZeroSucceeds(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 9, 0)
	svc := newTestService(repo)

	entry, err := svc.Adjust(context.Background(), AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: -9, Reason: "write off"})
	require.NoError(t, err)
	require.Zero(t, entry.Quantity)
	require.Zero(t, repo.entry(1, 1).Quantity)
	require.Len(t, repo.movements, 1)
	require.Zero(t, repo.movements[0].QuantityAfter)
}

func TestMoveThereAndBackRestoresBothEntries(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addLocation(2, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 30, 5)
	repo.seed(1, 2, 8, 0)
	svc := newTestService(repo)
	ctx := context.Background()
	src, dst := repo.entry(1, 1), repo.entry(1, 2)

	for _, n := range []int64{1, 25} {
		_, err := svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: n})
		require.NoError(t, err)
		res, err := svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 2, ToLocationID: 1, Quantity: n})
		require.NoError(t, err)
		require.Equal(t, dst.Quantity, res.Source.Quantity)
		require.Equal(t, src.Quantity, res.Destination.Quantity)
	}
	for _, pair := range [][2]StockEntry{{src, repo.entry(1, 1)}, {dst, repo.entry(1, 2)}} {
		require.Equal(t, pair[0].ID, pair[1].ID)
		require.Equal(t, pair[0].Quantity, pair[1].Quantity)
		require.Equal(t, pair[0].ReservedQuantity, pair[1].ReservedQuantity)
	}
	require.Len(t, repo.movements, 8)
}

func TestMoveOneMoreThanAvailableFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addLocation(2, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 20, 6)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 15})
	require.ErrorIs(t, err, ErrInsufficientAvailable)
	require.Equal(t, int64(20), repo.entry(1, 1).Quantity)
	require.Empty(t, repo.movements)

	res, err := svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 14})
	require.NoError(t, err)
	require.Equal(t, int64(6), res.Source.Quantity)
	require.Equal(t, int64(6), res.Source.ReservedQuantity)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	repo.seed(1, 1, 30, 5)
	svc := newTestService(repo)
	ctx := context.Background()
	in := ReservationInput{ProductID: 1, LocationID: 1, Quantity: 20, Reference: "hold-7"}

	entry, err := svc.Reserve(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(25), entry.ReservedQuantity)
	require.Equal(t, int64(30), entry.Quantity)

	_, err = svc.Reserve(ctx, ReservationInput{ProductID: 1, LocationID: 1, Quantity: 6})
	require.ErrorIs(t, err, ErrInsufficientAvailable)

	entry, err = svc.Release(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.ReservedQuantity)
	require.Equal(t, int64(30), entry.Quantity)

	_, err = svc.Release(ctx, ReservationInput{ProductID: 1, LocationID: 1, Quantity: 6})
	require.ErrorIs(t, err, ErrInvariantViolation)

	for _, rec := range repo.movements {
		require.Zero(t, rec.QuantityDelta)
	}
	require.Equal(t, KindReserve, repo.movements[0].Kind)
	require.Equal(t, KindRelease, repo.movements[1].Kind)
}

func TestMovementsReconcileWithEntries(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 1000)
	repo.addLocation(2, 1000)
	repo.addProduct(1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 120, Reason: "opening"})
	require.NoError(t, err)
	_, err = svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 45})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 2, QuantityChange: -5, Reason: "damage"})
	require.NoError(t, err)
	_, err = svc.Move(ctx, MoveInput{ProductID: 1, FromLocationID: 2, ToLocationID: 1, Quantity: 500})
	require.Error(t, err)

	sums := map[int64]int64{}
	for _, rec := range repo.movements {
		sums[rec.LocationID] += rec.QuantityDelta
	}
	require.Equal(t, repo.entry(1, 1).Quantity, sums[1])
	require.Equal(t, repo.entry(1, 2).Quantity, sums[2])
	require.Equal(t, int64(115), sums[1]+sums[2])
}

func TestHooksSeeOnlyCommittedRecords(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	var seen [][]MovementRecord
	hook := HookFunc(func(ctx context.Context, records []MovementRecord) {
		seen = append(seen, records)
	})
	svc := newTestService(repo, hook)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 101, Reason: "too much"})
	require.Error(t, err)
	require.Empty(t, seen)

	_, err = svc.Adjust(ctx, AdjustInput{ProductID: 1, LocationID: 1, QuantityChange: 10, Reason: "count"})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Len(t, seen[0], 1)
	require.NotZero(t, seen[0][0].ID)
}

func TestUpsertDeltaGuardsInvariant(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLocation(1, 100)
	repo.addProduct(1)
	key := Key{ProductID: 1, LocationID: 1}

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		l := NewLedger(tx, fixedNow)
		_, err := l.UpsertDelta(ctx, key, -1, 0)
		require.ErrorIs(t, err, ErrInvariantViolation)

		entry, err := l.UpsertDelta(ctx, key, 10, 4)
		require.NoError(t, err)
		require.Equal(t, int64(6), entry.Available())

		_, err = l.UpsertDelta(ctx, key, -7, 0)
		require.ErrorIs(t, err, ErrInvariantViolation)

		_, err = l.UpsertDelta(ctx, key, 0, 7)
		require.ErrorIs(t, err, ErrInvariantViolation)

		_, found, err := l.Get(ctx, Key{ProductID: 1, LocationID: 2})
		require.NoError(t, err)
		require.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestListEntriesPaginates(t *testing.T) {
	repo := newMemoryRepo()
	for p := int64(1); p <= 5; p++ {
		repo.seed(p, 1, p*10, 0)
	}
	svc := newTestService(repo)

	entries, meta, err := svc.ListEntries(context.Background(), EntryFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(3), entries[0].ProductID)
	require.Equal(t, 5, meta.Total)
	require.Equal(t, 3, meta.TotalPages)
}
