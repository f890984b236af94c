package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Adjust applies a signed manual correction to one entry. Reserved quantity
// is untouched; the reason is stored verbatim on the movement record.
func (l *Ledger) Adjust(ctx context.Context, in AdjustInput) (StockEntry, error) {
	if in.ProductID <= 0 || in.LocationID <= 0 {
		return StockEntry{}, fmt.Errorf("%w: product and location required", ErrValidation)
	}
	if in.QuantityChange == 0 {
		return StockEntry{}, fmt.Errorf("%w: quantity change must be non zero", ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return StockEntry{}, fmt.Errorf("%w: reason required", ErrValidation)
	}
	key := Key{ProductID: in.ProductID, LocationID: in.LocationID}
	locks := EntryLocks(key)
	if in.QuantityChange > 0 {
		locks = IncreaseLocks(key)
	}
	if err := l.Lock(ctx, locks); err != nil {
		return StockEntry{}, err
	}
	if _, err := l.Product(ctx, in.ProductID); err != nil {
		return StockEntry{}, err
	}
	if _, err := l.Location(ctx, in.LocationID); err != nil {
		return StockEntry{}, err
	}
	entry, _, err := l.Get(ctx, key)
	if err != nil {
		return StockEntry{}, err
	}
	if in.QuantityChange < 0 && entry.Quantity+in.QuantityChange < 0 {
		return StockEntry{}, violation(ErrInsufficientStock, key, -in.QuantityChange, entry.Quantity)
	}
	if err := l.CheckCapacity(ctx, in.LocationID, in.QuantityChange); err != nil {
		return StockEntry{}, err
	}
	return l.apply(ctx, key, in.QuantityChange, 0, MovementRecord{Kind: KindAdjust, Reason: in.Reason})
}

// Move transfers units between two locations without touching reservations.
// Both halves are logged as MOVE records sharing one link id.
func (l *Ledger) Move(ctx context.Context, in MoveInput) (StockEntry, StockEntry, error) {
	if in.ProductID <= 0 || in.FromLocationID <= 0 || in.ToLocationID <= 0 {
		return StockEntry{}, StockEntry{}, fmt.Errorf("%w: product and locations required", ErrValidation)
	}
	if in.FromLocationID == in.ToLocationID {
		return StockEntry{}, StockEntry{}, fmt.Errorf("%w: source and destination must differ", ErrInvalidMove)
	}
	if in.Quantity <= 0 {
		return StockEntry{}, StockEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidMove)
	}
	src := Key{ProductID: in.ProductID, LocationID: in.FromLocationID}
	dst := Key{ProductID: in.ProductID, LocationID: in.ToLocationID}
	if err := l.Lock(ctx, EntryLocks(src).Merge(IncreaseLocks(dst))); err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	if _, err := l.Product(ctx, in.ProductID); err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	if _, err := l.Location(ctx, in.FromLocationID); err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	if _, err := l.Location(ctx, in.ToLocationID); err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	source, _, err := l.Get(ctx, src)
	if err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	if source.Available() < in.Quantity {
		return StockEntry{}, StockEntry{}, violation(ErrInsufficientAvailable, src, in.Quantity, source.Available())
	}
	if err := l.CheckCapacity(ctx, in.ToLocationID, in.Quantity); err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	link := uuid.NewString()
	out, err := l.apply(ctx, src, -in.Quantity, 0, MovementRecord{Kind: KindMove, CounterLocationID: in.ToLocationID, LinkID: link})
	if err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	in2, err := l.apply(ctx, dst, in.Quantity, 0, MovementRecord{Kind: KindMove, CounterLocationID: in.FromLocationID, LinkID: link})
	if err != nil {
		return StockEntry{}, StockEntry{}, err
	}
	return out, in2, nil
}

// Receive adds arriving units to key, subject to the capacity guard. The
// caller must already hold IncreaseLocks(key).
func (l *Ledger) Receive(ctx context.Context, key Key, quantity int64, ref string) (StockEntry, error) {
	if quantity <= 0 {
		return StockEntry{}, fmt.Errorf("%w: received quantity must be positive", ErrValidation)
	}
	if _, err := l.Product(ctx, key.ProductID); err != nil {
		return StockEntry{}, err
	}
	if err := l.CheckCapacity(ctx, key.LocationID, quantity); err != nil {
		return StockEntry{}, err
	}
	return l.apply(ctx, key, quantity, 0, MovementRecord{Kind: KindReceive, Reference: ref})
}
