package inventory

import (
	"context"
	"fmt"
)

// Reserve earmarks amount units of key for an outbound line. Only available
// stock can be reserved. kind is KindPick for order picks and KindReserve for
// manual holds.
func (l *Ledger) Reserve(ctx context.Context, key Key, amount int64, kind MovementKind, ref string) (StockEntry, error) {
	if amount <= 0 {
		return StockEntry{}, fmt.Errorf("%w: reserve amount must be positive", ErrValidation)
	}
	entry, _, err := l.Get(ctx, key)
	if err != nil {
		return StockEntry{}, err
	}
	if entry.Available() < amount {
		return StockEntry{}, violation(ErrInsufficientAvailable, key, amount, entry.Available())
	}
	return l.apply(ctx, key, 0, amount, MovementRecord{Kind: kind, Reference: ref})
}

// Release hands reserved units back to available stock. Releasing more than
// is reserved is rejected rather than clamped.
func (l *Ledger) Release(ctx context.Context, key Key, amount int64, ref string) (StockEntry, error) {
	if amount <= 0 {
		return StockEntry{}, fmt.Errorf("%w: release amount must be positive", ErrValidation)
	}
	entry, _, err := l.Get(ctx, key)
	if err != nil {
		return StockEntry{}, err
	}
	if entry.ReservedQuantity < amount {
		return StockEntry{}, violation(ErrInvariantViolation, key, amount, entry.ReservedQuantity)
	}
	return l.apply(ctx, key, 0, -amount, MovementRecord{Kind: KindRelease, Reference: ref})
}

// Consume turns a reservation into a physical deduction: quantity and
// reserved drop together in a single write.
func (l *Ledger) Consume(ctx context.Context, key Key, amount int64, ref string) (StockEntry, error) {
	if amount <= 0 {
		return StockEntry{}, fmt.Errorf("%w: consume amount must be positive", ErrValidation)
	}
	entry, _, err := l.Get(ctx, key)
	if err != nil {
		return StockEntry{}, err
	}
	if entry.ReservedQuantity < amount {
		return StockEntry{}, violation(ErrInvariantViolation, key, amount, entry.ReservedQuantity)
	}
	return l.apply(ctx, key, -amount, -amount, MovementRecord{Kind: KindShip, Reference: ref})
}
