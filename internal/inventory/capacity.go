package inventory

import "context"

// CheckCapacity fails with ErrCapacityExceeded when adding units to the
// location would push its occupied total past capacity. Reserved units still
// occupy space, so occupancy is the plain quantity sum. The location must be
// locked by the caller.
func (l *Ledger) CheckCapacity(ctx context.Context, locationID, additional int64) error {
	if additional <= 0 {
		return nil
	}
	loc, err := l.Location(ctx, locationID)
	if err != nil {
		return err
	}
	occupied, err := l.tx.LocationOccupancy(ctx, locationID)
	if err != nil {
		return err
	}
	if occupied+additional > loc.Capacity {
		free := loc.Capacity - occupied
		if free < 0 {
			free = 0
		}
		return &Violation{Kind: ErrCapacityExceeded, LocationID: locationID, Requested: additional, Limit: free}
	}
	return nil
}

// IncreaseLocks is the lock set for adding stock to key.
func IncreaseLocks(keys ...Key) LockSet {
	set := LockSet{}
	for _, k := range keys {
		set.Locations = append(set.Locations, k.LocationID)
		set.Entries = append(set.Entries, k)
	}
	return set
}

// EntryLocks is the lock set for changes that never raise occupancy.
func EntryLocks(keys ...Key) LockSet {
	return LockSet{Entries: append([]Key{}, keys...)}
}
