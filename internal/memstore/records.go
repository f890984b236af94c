package memstore

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type idempotencyRecord struct {
	module    string
	createdAt time.Time
}

var (
	_ shared.IdempotencyGuard = (*Store)(nil)
	_ shared.AuditRecorder    = (*Store)(nil)
)

// CheckAndInsert claims key, failing with shared.ErrIdempotencyConflict when
// it was claimed before.
func (s *Store) CheckAndInsert(ctx context.Context, key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idempotency[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.idempotency[key] = idempotencyRecord{module: module, createdAt: s.now()}
	return nil
}

// Delete forgets key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
	return nil
}

// Cleanup drops keys older than olderThan and reports how many went.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, rec := range s.idempotency {
		if rec.createdAt.Before(cutoff) {
			delete(s.idempotency, key)
			removed++
		}
	}
	return removed, nil
}

// Record appends an audit entry.
func (s *Store) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns recorded audit entries, oldest first.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]shared.AuditLog(nil), s.audit...)
}
