package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

const idempotencyModule = "inbound.receive"

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger      *slog.Logger
	Audit       shared.AuditRecorder
	Idempotency shared.IdempotencyGuard
	Hooks       inventory.Hooks
	Rejections  inventory.RejectionObserver
	Clock       func() time.Time
}

// Service manages inbound shipments and books their receipts into stock.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditRecorder
	idempotency shared.IdempotencyGuard
	hooks       inventory.Hooks
	rejections  inventory.RejectionObserver
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
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
		repo:        repo,
		audit:       cfg.Audit,
		idempotency: cfg.Idempotency,
		hooks:       cfg.Hooks,
		rejections:  cfg.Rejections,
		logger:      logger,
		tracer:      otel.Tracer("github.com/odyssey-erp/odyssey-wms/internal/inbound"),
		now:         clock,
	}
}

// Create registers an expected shipment. Every referenced product and
// location must exist.
func (s *Service) Create(ctx context.Context, input CreateInput) (Shipment, error) {
	if input.SupplierID <= 0 {
		return Shipment{}, fmt.Errorf("%w: supplier required", inventory.ErrValidation)
	}
	if len(input.Items) == 0 {
		return Shipment{}, fmt.Errorf("%w: at least one item required", inventory.ErrValidation)
	}
	now := s.now().UTC()
	shipment := Shipment{
		SupplierID: input.SupplierID,
		Status:     StatusPending,
		ExpectedAt: input.ExpectedAt,
		CreatedAt:  now,
	}
	for i, item := range input.Items {
		if item.ProductID <= 0 || item.LocationID <= 0 {
			return Shipment{}, fmt.Errorf("%w: item %d needs product and location", inventory.ErrValidation, i)
		}
		if item.QuantityExpected <= 0 {
			return Shipment{}, fmt.Errorf("%w: item %d quantity expected must be positive", inventory.ErrValidation, i)
		}
		shipment.Items = append(shipment.Items, Item{
			ProductID:        item.ProductID,
			LocationID:       item.LocationID,
			QuantityExpected: item.QuantityExpected,
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger := inventory.NewLedger(tx, now)
		for _, item := range shipment.Items {
			if _, err := ledger.Product(ctx, item.ProductID); err != nil {
				return err
			}
			if _, err := ledger.Location(ctx, item.LocationID); err != nil {
				return err
			}
		}
		created, err := tx.InsertShipment(ctx, shipment)
		if err != nil {
			return err
		}
		shipment = created
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inbound:create", shipment.ID, map[string]any{"supplier_id": shipment.SupplierID, "items": len(shipment.Items)})
	return shipment, nil
}

// Get loads a shipment with its items.
func (s *Service) Get(ctx context.Context, id int64) (Shipment, error) {
	shipment, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return Shipment{}, notFound(err, id)
	}
	return shipment, nil
}

// List returns one page of shipments matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Shipment, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", inventory.ErrValidation, filter.Status)
	}
	if filter.SupplierID < 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: invalid supplier id", inventory.ErrValidation)
	}
	shipments, total, err := s.repo.ListShipments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return shipments, filter.pagination(total), nil
}

// Delete removes a shipment that is still PENDING. Once receiving has
// started the shipment is part of the stock history and stays.
func (s *Service) Delete(ctx context.Context, input DeleteInput) error {
	if input.ShipmentID <= 0 {
		return fmt.Errorf("%w: shipment id required", inventory.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shipment, err := tx.GetShipmentForUpdate(ctx, input.ShipmentID)
		if err != nil {
			return notFound(err, input.ShipmentID)
		}
		if !shipment.Status.CanDelete() {
			return fmt.Errorf("%w: shipment %d is %s", ErrInvalidState, shipment.ID, shipment.Status)
		}
		return tx.DeleteShipment(ctx, shipment.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, input.ActorID, "inbound:delete", input.ShipmentID, nil)
	return nil
}

// Receive books a batch of arrived quantities. Either every line is applied
// or none: a single failing line leaves the shipment and stock untouched.
// Lines naming the same item are summed first.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Shipment, error) {
	ctx, span := s.tracer.Start(ctx, "inbound.Receive", trace.WithAttributes(
		attribute.Int64("shipment_id", input.ShipmentID),
		attribute.Int("lines", len(input.Lines)),
	))
	defer span.End()

	shipment, records, err := s.receive(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.rejections != nil {
			s.rejections.ObserveRejection("inbound.Receive", err)
		}
		return Shipment{}, err
	}
	s.hooks.MovementsCommitted(ctx, records)
	s.recordAudit(ctx, input.ActorID, "inbound:receive", shipment.ID, map[string]any{
		"status": string(shipment.Status),
		"lines":  len(input.Lines),
	})
	return shipment, nil
}

func (s *Service) receive(ctx context.Context, input ReceiveInput) (Shipment, []inventory.MovementRecord, error) {
	if input.ShipmentID <= 0 {
		return Shipment{}, nil, fmt.Errorf("%w: shipment id required", inventory.ErrValidation)
	}
	quantities, err := sumLines(input.Lines)
	if err != nil {
		return Shipment{}, nil, err
	}

	key := shared.IdempotencyKey(idempotencyModule, input.ShipmentID, input.IdempotencyKey)
	inserted := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Shipment{}, nil, err
		}
		inserted = true
	}

	var shipment Shipment
	var records []inventory.MovementRecord
	now := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetShipmentForUpdate(ctx, input.ShipmentID)
		if err != nil {
			return notFound(err, input.ShipmentID)
		}
		if !current.Status.CanReceive() {
			return fmt.Errorf("%w: shipment %d is %s", ErrInvalidState, current.ID, current.Status)
		}
		keys := make([]inventory.Key, 0, len(quantities))
		for _, line := range quantities {
			item, ok := current.item(line.ItemID)
			if !ok {
				return &inventory.Violation{Kind: inventory.ErrNotFound, ItemID: line.ItemID}
			}
			if line.QuantityReceived > item.Outstanding() {
				return &inventory.Violation{
					Kind:       ErrOverReceipt,
					ProductID:  item.ProductID,
					LocationID: item.LocationID,
					ItemID:     item.ID,
					Requested:  line.QuantityReceived,
					Limit:      item.Outstanding(),
				}
			}
			keys = append(keys, inventory.Key{ProductID: item.ProductID, LocationID: item.LocationID})
		}

		ledger := inventory.NewLedger(tx, now)
		if err := ledger.Lock(ctx, inventory.IncreaseLocks(keys...)); err != nil {
			return err
		}
		ref := "shipment:" + strconv.FormatInt(current.ID, 10)
		for _, line := range quantities {
			item, _ := current.item(line.ItemID)
			if _, err := ledger.Receive(ctx, inventory.Key{ProductID: item.ProductID, LocationID: item.LocationID}, line.QuantityReceived, ref); err != nil {
				var v *inventory.Violation
				if errors.As(err, &v) {
					v.ItemID = item.ID
				}
				return err
			}
			item.QuantityReceived += line.QuantityReceived
		}

		current.Status = StatusInProcess
		if allReceived(current.Items) {
			current.Status = StatusCompleted
			current.ReceivedAt = &now
		}
		if err := tx.UpdateShipment(ctx, current); err != nil {
			return err
		}
		shipment = current
		records = ledger.Records()
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Shipment{}, nil, err
	}
	return shipment, records, nil
}

// sumLines folds repeated item ids together and drops zero lines. The result
// is ordered by item id.
func sumLines(lines []ReceiveLine) ([]ReceiveLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", inventory.ErrValidation)
	}
	totals := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if line.ItemID <= 0 {
			return nil, fmt.Errorf("%w: item id required", inventory.ErrValidation)
		}
		if line.QuantityReceived < 0 {
			return nil, &inventory.Violation{Kind: inventory.ErrValidation, ItemID: line.ItemID, Requested: line.QuantityReceived}
		}
		totals[line.ItemID] += line.QuantityReceived
	}
	out := make([]ReceiveLine, 0, len(totals))
	for id, qty := range totals {
		if qty == 0 {
			continue
		}
		out = append(out, ReceiveLine{ItemID: id, QuantityReceived: qty})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: nothing to receive", inventory.ErrValidation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func allReceived(items []Item) bool {
	for _, item := range items {
		if !item.Complete() {
			return false
		}
	}
	return true
}

func notFound(err error, shipmentID int64) error {
	if errors.Is(err, inventory.ErrNotFound) {
		return fmt.Errorf("%w: shipment %d", inventory.ErrNotFound, shipmentID)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, shipmentID int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inbound_shipment",
		EntityID: strconv.FormatInt(shipmentID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
