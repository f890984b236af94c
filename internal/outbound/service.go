package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger      *slog.Logger
	Audit       shared.AuditRecorder
	Idempotency shared.IdempotencyGuard
	Hooks       inventory.Hooks
	Rejections  inventory.RejectionObserver
	Clock       func() time.Time
}

// Service drives outbound orders through picking, packing and shipping.
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
		tracer:      otel.Tracer("github.com/odyssey-erp/odyssey-wms/internal/outbound"),
		now:         clock,
	}
}

// Create registers a new PENDING order.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return Order{}, fmt.Errorf("%w: customer name required", inventory.ErrValidation)
	}
	if len(input.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item required", inventory.ErrValidation)
	}
	now := s.now().UTC()
	order := Order{CustomerName: name, Status: StatusPending, CreatedAt: now}
	for i, item := range input.Items {
		if item.ProductID <= 0 || item.LocationID <= 0 {
			return Order{}, fmt.Errorf("%w: item %d needs product and location", inventory.ErrValidation, i)
		}
		if item.QuantityOrdered <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity ordered must be positive", inventory.ErrValidation, i)
		}
		order.Items = append(order.Items, Item{ProductID: item.ProductID, LocationID: item.LocationID, QuantityOrdered: item.QuantityOrdered})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ledger := inventory.NewLedger(tx, now)
		for _, item := range order.Items {
			if _, err := ledger.Product(ctx, item.ProductID); err != nil {
				return err
			}
			if _, err := ledger.Location(ctx, item.LocationID); err != nil {
				return err
			}
		}
		created, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "outbound:create", order.ID, map[string]any{"customer_name": order.CustomerName, "items": len(order.Items)})
	return order, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, notFound(err, id)
	}
	return order, nil
}

// List returns one page of orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", inventory.ErrValidation, filter.Status)
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, filter.pagination(total), nil
}

// Delete removes an order that has not started picking.
func (s *Service) Delete(ctx context.Context, input TransitionInput) error {
	if input.OrderID <= 0 {
		return fmt.Errorf("%w: order id required", inventory.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFound(err, input.OrderID)
		}
		if !order.Status.CanDelete() {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.ID, order.Status)
		}
		return tx.DeleteOrder(ctx, order.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, input.ActorID, "outbound:delete", input.OrderID, nil)
	return nil
}

// Pick reserves picked quantities for a batch of items. Either every line is
// applied or none. The order moves to IN_PICKING and, once every item is
// fully picked, to PACKED.
func (s *Service) Pick(ctx context.Context, input PickInput) (Order, error) {
	lines, err := sumLines(input.Lines)
	if err != nil {
		return Order{}, err
	}
	return s.transition(ctx, "outbound.Pick", input.OrderID, input.IdempotencyKey, input.ActorID,
		func(ctx context.Context, ledger *inventory.Ledger, order *Order) error {
			if !order.Status.CanPick() {
				return fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.ID, order.Status)
			}
			keys := make([]inventory.Key, 0, len(lines))
			for _, line := range lines {
				item, ok := order.item(line.ItemID)
				if !ok {
					return &inventory.Violation{Kind: inventory.ErrNotFound, ItemID: line.ItemID}
				}
				if line.QuantityPicked > item.Remaining() {
					return &inventory.Violation{
						Kind:       ErrOverPick,
						ProductID:  item.ProductID,
						LocationID: item.LocationID,
						ItemID:     item.ID,
						Requested:  line.QuantityPicked,
						Limit:      item.Remaining(),
					}
				}
				keys = append(keys, itemKey(*item))
			}
			if err := ledger.Lock(ctx, inventory.EntryLocks(keys...)); err != nil {
				return err
			}
			ref := orderRef(order.ID)
			for _, line := range lines {
				item, _ := order.item(line.ItemID)
				if _, err := ledger.Reserve(ctx, itemKey(*item), line.QuantityPicked, inventory.KindPick, ref); err != nil {
					return withItem(err, item.ID)
				}
				item.QuantityPicked += line.QuantityPicked
			}
			order.Status = StatusInPicking
			if allPicked(order.Items) {
				order.Status = StatusPacked
			}
			return nil
		})
}

// Ship converts every reservation of a PACKED order into a physical
// deduction and marks it SHIPPED.
func (s *Service) Ship(ctx context.Context, input TransitionInput) (Order, error) {
	return s.transition(ctx, "outbound.Ship", input.OrderID, input.IdempotencyKey, input.ActorID,
		func(ctx context.Context, ledger *inventory.Ledger, order *Order) error {
			if !order.Status.CanShip() {
				return fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.ID, order.Status)
			}
			if err := ledger.Lock(ctx, inventory.EntryLocks(pickedKeys(order.Items)...)); err != nil {
				return err
			}
			ref := orderRef(order.ID)
			for _, item := range order.Items {
				if item.QuantityPicked == 0 {
					continue
				}
				if _, err := ledger.Consume(ctx, itemKey(item), item.QuantityPicked, ref); err != nil {
					return withItem(err, item.ID)
				}
			}
			shippedAt := ledger.Now()
			order.Status = StatusShipped
			order.ShippedAt = &shippedAt
			return nil
		})
}

// Cancel releases every reservation held by the order and marks it CANCELLED.
func (s *Service) Cancel(ctx context.Context, input TransitionInput) (Order, error) {
	return s.transition(ctx, "outbound.Cancel", input.OrderID, input.IdempotencyKey, input.ActorID,
		func(ctx context.Context, ledger *inventory.Ledger, order *Order) error {
			if !order.Status.CanCancel() {
				return fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.ID, order.Status)
			}
			if err := ledger.Lock(ctx, inventory.EntryLocks(pickedKeys(order.Items)...)); err != nil {
				return err
			}
			ref := orderRef(order.ID)
			for _, item := range order.Items {
				if item.QuantityPicked == 0 {
					continue
				}
				if _, err := ledger.Release(ctx, itemKey(item), item.QuantityPicked, ref); err != nil {
					return withItem(err, item.ID)
				}
			}
			order.Status = StatusCancelled
			return nil
		})
}

type transitionFunc func(ctx context.Context, ledger *inventory.Ledger, order *Order) error

// transition locks the order row, runs fn against the ledger and persists the
// order in the same transaction. Hooks and audit run after commit.
func (s *Service) transition(ctx context.Context, operation string, orderID int64, clientKey string, actorID int64, fn transitionFunc) (Order, error) {
	ctx, span := s.tracer.Start(ctx, operation, trace.WithAttributes(attribute.Int64("order_id", orderID)))
	defer span.End()

	order, records, err := s.runTransition(ctx, operation, orderID, clientKey, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.rejections != nil {
			s.rejections.ObserveRejection(operation, err)
		}
		return Order{}, err
	}
	span.SetAttributes(attribute.String("status", string(order.Status)))
	s.hooks.MovementsCommitted(ctx, records)
	s.recordAudit(ctx, actorID, operation, order.ID, map[string]any{"status": string(order.Status)})
	return order, nil
}

func (s *Service) runTransition(ctx context.Context, operation string, orderID int64, clientKey string, fn transitionFunc) (Order, []inventory.MovementRecord, error) {
	if orderID <= 0 {
		return Order{}, nil, fmt.Errorf("%w: order id required", inventory.ErrValidation)
	}
	key := shared.IdempotencyKey(operation, orderID, clientKey)
	inserted := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, operation); err != nil {
			return Order{}, nil, err
		}
		inserted = true
	}

	var order Order
	var records []inventory.MovementRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, orderID)
		}
		ledger := inventory.NewLedger(tx, s.now())
		if err := fn(ctx, ledger, &current); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		records = ledger.Records()
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Order{}, nil, err
	}
	return order, records, nil
}

// sumLines folds repeated item ids together and drops zero lines. The result
// is ordered by item id.
func sumLines(lines []PickLine) ([]PickLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", inventory.ErrValidation)
	}
	totals := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if line.ItemID <= 0 {
			return nil, fmt.Errorf("%w: item id required", inventory.ErrValidation)
		}
		if line.QuantityPicked < 0 {
			return nil, &inventory.Violation{Kind: inventory.ErrValidation, ItemID: line.ItemID, Requested: line.QuantityPicked}
		}
		totals[line.ItemID] += line.QuantityPicked
	}
	out := make([]PickLine, 0, len(totals))
	for id, qty := range totals {
		if qty > 0 {
			out = append(out, PickLine{ItemID: id, QuantityPicked: qty})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: nothing to pick", inventory.ErrValidation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func allPicked(items []Item) bool {
	for _, item := range items {
		if !item.Complete() {
			return false
		}
	}
	return true
}

func pickedKeys(items []Item) []inventory.Key {
	keys := make([]inventory.Key, 0, len(items))
	for _, item := range items {
		if item.QuantityPicked > 0 {
			keys = append(keys, itemKey(item))
		}
	}
	return keys
}

func itemKey(item Item) inventory.Key {
	return inventory.Key{ProductID: item.ProductID, LocationID: item.LocationID}
}

func orderRef(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

func withItem(err error, itemID int64) error {
	var v *inventory.Violation
	if errors.As(err, &v) {
		v.ItemID = itemID
	}
	return err
}

func notFound(err error, orderID int64) error {
	if errors.Is(err, inventory.ErrNotFound) {
		return fmt.Errorf("%w: order %d", inventory.ErrNotFound, orderID)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "outbound_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
