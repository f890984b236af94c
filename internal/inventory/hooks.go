package inventory

import "context"

// MovementHook observes movement records once their transaction has committed.
// Hooks run outside every lock and cannot fail the operation.
type MovementHook interface {
	MovementsCommitted(ctx context.Context, records []MovementRecord)
}

// HookFunc adapts a function to MovementHook.
type HookFunc func(ctx context.Context, records []MovementRecord)

// MovementsCommitted calls f.
func (f HookFunc) MovementsCommitted(ctx context.Context, records []MovementRecord) {
	f(ctx, records)
}

// Hooks fans records out to every registered hook in order.
type Hooks []MovementHook

// MovementsCommitted notifies each hook. Empty batches are dropped.
func (h Hooks) MovementsCommitted(ctx context.Context, records []MovementRecord) {
	if len(records) == 0 {
		return
	}
	for _, hook := range h {
		if hook != nil {
			hook.MovementsCommitted(ctx, records)
		}
	}
}
