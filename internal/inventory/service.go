package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, int, error)
	GetEntryByID(ctx context.Context, id int64) (StockEntry, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error)
}

// RejectionObserver is told about every operation that failed.
type RejectionObserver interface {
	ObserveRejection(operation string, err error)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger     *slog.Logger
	Audit      shared.AuditRecorder
	Hooks      Hooks
	Rejections RejectionObserver
	Clock      func() time.Time
}

// Service coordinates standalone inventory operations: adjustments, moves
// and manual reservations.
type Service struct {
	repo       RepositoryPort
	audit      shared.AuditRecorder
	hooks      Hooks
	rejections RejectionObserver
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:       repo,
		audit:      cfg.Audit,
		hooks:      cfg.Hooks,
		rejections: cfg.Rejections,
		logger:     logger,
		tracer:     otel.Tracer("github.com/odyssey-erp/odyssey-wms/internal/inventory"),
		now:        clock,
	}
}

// MoveResult holds both sides of a completed transfer.
type MoveResult struct {
	Source      StockEntry `json:"source"`
	Destination StockEntry `json:"destination"`
}

// Adjust applies a manual correction.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (StockEntry, error) {
	var out StockEntry
	err := s.run(ctx, "inventory.Adjust", func(ctx context.Context, l *Ledger) error {
		entry, err := l.Adjust(ctx, in)
		out = entry
		return err
	}, attribute.Int64("product_id", in.ProductID), attribute.Int64("location_id", in.LocationID), attribute.Int64("quantity_change", in.QuantityChange))
	if err != nil {
		return StockEntry{}, err
	}
	s.recordAudit(ctx, in.ActorID, "inventory:adjust", out.Key(), map[string]any{
		"quantity_change": in.QuantityChange,
		"reason":          in.Reason,
	})
	return out, nil
}

// Move transfers available stock between two locations.
func (s *Service) Move(ctx context.Context, in MoveInput) (MoveResult, error) {
	var out MoveResult
	err := s.run(ctx, "inventory.Move", func(ctx context.Context, l *Ledger) error {
		src, dst, err := l.Move(ctx, in)
		out = MoveResult{Source: src, Destination: dst}
		return err
	}, attribute.Int64("product_id", in.ProductID), attribute.Int64("from_location_id", in.FromLocationID), attribute.Int64("to_location_id", in.ToLocationID), attribute.Int64("quantity", in.Quantity))
	if err != nil {
		return MoveResult{}, err
	}
	s.recordAudit(ctx, in.ActorID, "inventory:move", out.Source.Key(), map[string]any{
		"to_location_id": in.ToLocationID,
		"quantity":       in.Quantity,
	})
	return out, nil
}

// Reserve places a manual hold on available stock.
func (s *Service) Reserve(ctx context.Context, in ReservationInput) (StockEntry, error) {
	var out StockEntry
	err := s.run(ctx, "inventory.Reserve", func(ctx context.Context, l *Ledger) error {
		key, err := s.lockReservation(ctx, l, in)
		if err != nil {
			return err
		}
		out, err = l.Reserve(ctx, key, in.Quantity, KindReserve, in.Reference)
		return err
	}, attribute.Int64("product_id", in.ProductID), attribute.Int64("location_id", in.LocationID), attribute.Int64("quantity", in.Quantity))
	if err != nil {
		return StockEntry{}, err
	}
	s.recordAudit(ctx, in.ActorID, "inventory:reserve", out.Key(), map[string]any{"quantity": in.Quantity, "ref": in.Reference})
	return out, nil
}

// Release returns a manual hold to available stock.
func (s *Service) Release(ctx context.Context, in ReservationInput) (StockEntry, error) {
	var out StockEntry
	err := s.run(ctx, "inventory.Release", func(ctx context.Context, l *Ledger) error {
		key, err := s.lockReservation(ctx, l, in)
		if err != nil {
			return err
		}
		out, err = l.Release(ctx, key, in.Quantity, in.Reference)
		return err
	}, attribute.Int64("product_id", in.ProductID), attribute.Int64("location_id", in.LocationID), attribute.Int64("quantity", in.Quantity))
	if err != nil {
		return StockEntry{}, err
	}
	s.recordAudit(ctx, in.ActorID, "inventory:release", out.Key(), map[string]any{"quantity": in.Quantity, "ref": in.Reference})
	return out, nil
}

// GetEntry returns one stock entry by surrogate id.
func (s *Service) GetEntry(ctx context.Context, id int64) (StockEntry, error) {
	if id <= 0 {
		return StockEntry{}, fmt.Errorf("%w: entry id required", ErrValidation)
	}
	return s.repo.GetEntryByID(ctx, id)
}

// ListEntries pages through stock entries ordered by product then location.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter, page, perPage int) ([]StockEntry, shared.Pagination, error) {
	meta := shared.NewPagination(page, perPage, 0)
	filter.Limit = meta.PerPage
	filter.Offset = meta.Offset()
	entries, total, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(meta.Page, meta.PerPage, total), nil
}

// ListMovements returns movement history newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) lockReservation(ctx context.Context, l *Ledger, in ReservationInput) (Key, error) {
	if in.ProductID <= 0 || in.LocationID <= 0 {
		return Key{}, fmt.Errorf("%w: product and location required", ErrValidation)
	}
	key := Key{ProductID: in.ProductID, LocationID: in.LocationID}
	if err := l.Lock(ctx, EntryLocks(key)); err != nil {
		return Key{}, err
	}
	if _, err := l.Product(ctx, in.ProductID); err != nil {
		return Key{}, err
	}
	if _, err := l.Location(ctx, in.LocationID); err != nil {
		return Key{}, err
	}
	return key, nil
}

// run executes fn in one transaction and notifies hooks once it commits.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context, *Ledger) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	defer span.End()

	var records []MovementRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger := NewLedger(tx, s.now())
		if err := fn(ctx, ledger); err != nil {
			return err
		}
		records = ledger.Records()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.rejections != nil {
			s.rejections.ObserveRejection(operation, err)
		}
		s.logger.Debug("inventory operation rejected", slog.String("operation", operation), slog.Any("error", err))
		return err
	}
	span.SetAttributes(attribute.Int("movements", len(records)))
	s.hooks.MovementsCommitted(ctx, records)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, key Key, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["product_id"] = key.ProductID
	meta["location_id"] = key.LocationID
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_entry",
		EntityID: key.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
