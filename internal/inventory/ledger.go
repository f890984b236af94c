package inventory

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrEntryNotFound is returned by repositories when no entry exists for a key.
var ErrEntryNotFound = errors.New("inventory: stock entry not found")

// TxRepository is the transactional storage contract behind the ledger.
type TxRepository interface {
	// Lock takes exclusive locks on the listed rows, locations first, each
	// group in ascending order.
	Lock(ctx context.Context, set LockSet) error
	GetEntry(ctx context.Context, key Key) (StockEntry, error)
	SaveEntry(ctx context.Context, entry StockEntry) (StockEntry, error)
	ListEntriesByProduct(ctx context.Context, productID int64) ([]StockEntry, error)
	LocationOccupancy(ctx context.Context, locationID int64) (int64, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	InsertMovement(ctx context.Context, rec MovementRecord) (int64, error)
}

// Ledger applies deltas to stock entries inside one transaction and collects
// the movement records it appends.
type Ledger struct {
	tx      TxRepository
	now     time.Time
	records []MovementRecord
}

// NewLedger wraps a transactional repository. now stamps every change made
// through the ledger.
func NewLedger(tx TxRepository, now time.Time) *Ledger {
	return &Ledger{tx: tx, now: now.UTC()}
}

// Now is the timestamp stamped on every change made through the ledger.
func (l *Ledger) Now() time.Time {
	return l.now
}

// Lock acquires the rows of set in the global order.
func (l *Ledger) Lock(ctx context.Context, set LockSet) error {
	return l.tx.Lock(ctx, set.normalised())
}

// Get returns the entry for key, or false when none exists.
func (l *Ledger) Get(ctx context.Context, key Key) (StockEntry, bool, error) {
	entry, err := l.tx.GetEntry(ctx, key)
	if errors.Is(err, ErrEntryNotFound) {
		return StockEntry{ProductID: key.ProductID, LocationID: key.LocationID}, false, nil
	}
	if err != nil {
		return StockEntry{}, false, err
	}
	return entry, true, nil
}

// UpsertDelta is the only mutation primitive of the ledger. Callers validate
// under the same lock first; a delta that still breaks
// 0 <= reserved <= quantity fails with ErrInvariantViolation.
func (l *Ledger) UpsertDelta(ctx context.Context, key Key, quantityDelta, reservedDelta int64) (StockEntry, error) {
	entry, found, err := l.Get(ctx, key)
	if err != nil {
		return StockEntry{}, err
	}
	if !found && (quantityDelta < 0 || reservedDelta < 0) {
		return StockEntry{}, violation(ErrInvariantViolation, key, -quantityDelta, 0)
	}
	quantity := entry.Quantity + quantityDelta
	reserved := entry.ReservedQuantity + reservedDelta
	switch {
	case quantity < 0:
		return StockEntry{}, violation(ErrInvariantViolation, key, -quantityDelta, entry.Quantity)
	case reserved < 0:
		return StockEntry{}, violation(ErrInvariantViolation, key, -reservedDelta, entry.ReservedQuantity)
	case reserved > quantity:
		return StockEntry{}, violation(ErrInvariantViolation, key, reserved, quantity)
	}
	entry.Quantity = quantity
	entry.ReservedQuantity = reserved
	entry.LastUpdated = l.now
	return l.tx.SaveEntry(ctx, entry)
}

// ListByProduct returns every entry of a product ordered by location.
func (l *Ledger) ListByProduct(ctx context.Context, productID int64) ([]StockEntry, error) {
	entries, err := l.tx.ListEntriesByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LocationID < entries[j].LocationID })
	return entries, nil
}

// Records returns the movement records appended so far, in append order.
func (l *Ledger) Records() []MovementRecord {
	out := make([]MovementRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) append(ctx context.Context, rec MovementRecord, entry StockEntry) (MovementRecord, error) {
	rec.ProductID = entry.ProductID
	rec.LocationID = entry.LocationID
	rec.QuantityAfter = entry.Quantity
	rec.ReservedAfter = entry.ReservedQuantity
	rec.CreatedAt = l.now
	id, err := l.tx.InsertMovement(ctx, rec)
	if err != nil {
		return MovementRecord{}, err
	}
	rec.ID = id
	l.records = append(l.records, rec)
	return rec, nil
}

// apply runs UpsertDelta and logs the change as rec.
func (l *Ledger) apply(ctx context.Context, key Key, quantityDelta, reservedDelta int64, rec MovementRecord) (StockEntry, error) {
	entry, err := l.UpsertDelta(ctx, key, quantityDelta, reservedDelta)
	if err != nil {
		return StockEntry{}, err
	}
	rec.QuantityDelta = quantityDelta
	rec.ReservedDelta = reservedDelta
	if _, err := l.append(ctx, rec, entry); err != nil {
		return StockEntry{}, err
	}
	return entry, nil
}

// Location loads a location, failing with ErrNotFound when it does not exist.
func (l *Ledger) Location(ctx context.Context, id int64) (Location, error) {
	loc, err := l.tx.GetLocation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Location{}, &Violation{Kind: ErrNotFound, LocationID: id}
	}
	return loc, err
}

// Product loads a product, failing with ErrNotFound when it does not exist.
func (l *Ledger) Product(ctx context.Context, id int64) (Product, error) {
	p, err := l.tx.GetProduct(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Product{}, &Violation{Kind: ErrNotFound, ProductID: id}
	}
	return p, err
}

func (s LockSet) normalised() LockSet {
	out := LockSet{}
	seenLoc := make(map[int64]struct{}, len(s.Locations))
	for _, id := range s.Locations {
		if _, ok := seenLoc[id]; ok {
			continue
		}
		seenLoc[id] = struct{}{}
		out.Locations = append(out.Locations, id)
	}
	seenKey := make(map[Key]struct{}, len(s.Entries))
	for _, k := range s.Entries {
		if _, ok := seenKey[k]; ok {
			continue
		}
		seenKey[k] = struct{}{}
		out.Entries = append(out.Entries, k)
	}
	sort.Slice(out.Locations, func(i, j int) bool { return out.Locations[i] < out.Locations[j] })
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Less(out.Entries[j]) })
	return out
}

// Merge combines two lock sets.
func (s LockSet) Merge(other LockSet) LockSet {
	return LockSet{
		Locations: append(append([]int64{}, s.Locations...), other.Locations...),
		Entries:   append(append([]Key{}, s.Entries...), other.Entries...),
	}
}
