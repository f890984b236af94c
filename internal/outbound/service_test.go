package outbound_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/memstore"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	store   *memstore.Store
	stock   *inventory.Service
	service *outbound.Service
	kinds   []inventory.MovementKind
	widget  inventory.Product
	gadget  inventory.Product
	bin     inventory.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := func() time.Time { return testNow }
	e := &env{store: memstore.New(clock)}
	ctx := context.Background()
	var err error
	e.widget, err = e.store.CreateProduct(ctx, inventory.Product{SKU: "WIDGET", Name: "Widget"})
	require.NoError(t, err)
	e.gadget, err = e.store.CreateProduct(ctx, inventory.Product{SKU: "GADGET", Name: "Gadget"})
	require.NoError(t, err)
	e.bin, err = e.store.CreateLocation(ctx, inventory.Location{Code: "BIN-1", Capacity: 500})
	require.NoError(t, err)

	e.stock = inventory.NewService(e.store.Inventory(), inventory.ServiceConfig{Clock: clock})
	e.service = outbound.NewService(e.store.Outbound(), outbound.ServiceConfig{
		Audit:       e.store,
		Idempotency: e.store,
		Hooks: inventory.Hooks{inventory.HookFunc(func(ctx context.Context, records []inventory.MovementRecord) {
			for _, rec := range records {
				e.kinds = append(e.kinds, rec.Kind)
			}
		})},
		Clock: clock,
	})
	return e
}

func (e *env) seed(t *testing.T, productID, qty int64) {
	t.Helper()
	_, err := e.stock.Adjust(context.Background(), inventory.AdjustInput{
		ProductID: productID, LocationID: e.bin.ID, QuantityChange: qty, Reason: "opening balance",
	})
	require.NoError(t, err)
}

func (e *env) entry(t *testing.T, productID int64) inventory.StockEntry {
	t.Helper()
	entries, _, err := e.store.Inventory().ListEntries(context.Background(), inventory.EntryFilter{ProductID: productID, LocationID: e.bin.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func (e *env) order(t *testing.T, items ...outbound.CreateItemInput) outbound.Order {
	t.Helper()
	order, err := e.service.Create(context.Background(), outbound.CreateInput{CustomerName: "ACME", Items: items})
	require.NoError(t, err)
	require.Equal(t, outbound.StatusPending, order.Status)
	return order
}

func pick(orderID int64, lines ...outbound.PickLine) outbound.PickInput {
	return outbound.PickInput{OrderID: orderID, Lines: lines}
}

func TestPickThenShip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 50)
	order := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 20})

	packed, err := e.service.Pick(ctx, pick(order.ID, outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 20}))
	require.NoError(t, err)
	require.Equal(t, outbound.StatusPacked, packed.Status)
	require.Equal(t, int64(20), packed.Items[0].QuantityPicked)
	require.Equal(t, int64(50), e.entry(t, e.widget.ID).Quantity)
	require.Equal(t, int64(20), e.entry(t, e.widget.ID).ReservedQuantity)

	shipped, err := e.service.Ship(ctx, outbound.TransitionInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, outbound.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	require.Equal(t, testNow, *shipped.ShippedAt)

	after := e.entry(t, e.widget.ID)
	require.Equal(t, int64(30), after.Quantity)
	require.Zero(t, after.ReservedQuantity)
	require.Equal(t, []inventory.MovementKind{inventory.KindPick, inventory.KindShip}, e.kinds)

	_, err = e.service.Ship(ctx, outbound.TransitionInput{OrderID: order.ID})
	require.ErrorIs(t, err, outbound.ErrInvalidState)
}

func TestPartialPickStaysInPicking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	e.seed(t, e.gadget.ID, 10)
	order := e.order(t,
		outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 4},
		outbound.CreateItemInput{ProductID: e.gadget.ID, LocationID: e.bin.ID, QuantityOrdered: 3},
	)

	got, err := e.service.Pick(ctx, pick(order.ID, outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 4}))
	require.NoError(t, err)
	require.Equal(t, outbound.StatusInPicking, got.Status)

	_, err = e.service.Ship(ctx, outbound.TransitionInput{OrderID: order.ID})
	require.ErrorIs(t, err, outbound.ErrInvalidState)

	got, err = e.service.Pick(ctx, pick(order.ID, outbound.PickLine{ItemID: order.Items[1].ID, QuantityPicked: 3}))
	require.NoError(t, err)
	require.Equal(t, outbound.StatusPacked, got.Status)

	_, err = e.service.Pick(ctx, pick(order.ID, outbound.PickLine{ItemID: order.Items[1].ID, QuantityPicked: 1}))
	require.ErrorIs(t, err, outbound.ErrInvalidState)
}

func TestPickBatchIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	e.seed(t, e.gadget.ID, 2)
	order := e.order(t,
		outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 5},
		outbound.CreateItemInput{ProductID: e.gadget.ID, LocationID: e.bin.ID, QuantityOrdered: 5},
	)

	_, err := e.service.Pick(ctx, pick(order.ID,
		outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 5},
		outbound.PickLine{ItemID: order.Items[1].ID, QuantityPicked: 5},
	))
	require.ErrorIs(t, err, inventory.ErrInsufficientAvailable)
	var v *inventory.Violation
	require.True(t, errors.As(err, &v))
	require.Equal(t, order.Items[1].ID, v.ItemID)
	require.Equal(t, int64(2), v.Limit)

	require.Zero(t, e.entry(t, e.widget.ID).ReservedQuantity)
	current, err := e.service.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, outbound.StatusPending, current.Status)
	require.Zero(t, current.Items[0].QuantityPicked)
	require.Empty(t, e.kinds)
}

func TestOverPickIsRejected(t *testing.T) {
	e := newEnv(t)
	e.seed(t, e.widget.ID, 100)
	order := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 5})

	_, err := e.service.Pick(context.Background(), pick(order.ID,
		outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 3},
		outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 3},
	))
	require.ErrorIs(t, err, outbound.ErrOverPick)
	require.Zero(t, e.entry(t, e.widget.ID).ReservedQuantity)
}

func TestCancelReleasesReservations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	order := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 8})

	_, err := e.service.Pick(ctx, pick(order.ID, outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 6}))
	require.NoError(t, err)
	require.Equal(t, int64(6), e.entry(t, e.widget.ID).ReservedQuantity)

	cancelled, err := e.service.Cancel(ctx, outbound.TransitionInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, outbound.StatusCancelled, cancelled.Status)
	require.Equal(t, int64(6), cancelled.Items[0].QuantityPicked)

	after := e.entry(t, e.widget.ID)
	require.Equal(t, int64(10), after.Quantity)
	require.Zero(t, after.ReservedQuantity)

	_, err = e.service.Cancel(ctx, outbound.TransitionInput{OrderID: order.ID})
	require.ErrorIs(t, err, outbound.ErrInvalidState)
}

func TestDeleteOnlyWhilePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	pending := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 1})
	started := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 2})
	_, err := e.service.Pick(ctx, pick(started.ID, outbound.PickLine{ItemID: started.Items[0].ID, QuantityPicked: 1}))
	require.NoError(t, err)

	require.NoError(t, e.service.Delete(ctx, outbound.TransitionInput{OrderID: pending.ID}))
	_, err = e.service.Get(ctx, pending.ID)
	require.ErrorIs(t, err, inventory.ErrNotFound)

	err = e.service.Delete(ctx, outbound.TransitionInput{OrderID: started.ID})
	require.ErrorIs(t, err, outbound.ErrInvalidState)
}

func TestPickIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	order := e.order(t, outbound.CreateItemInput{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 4})

	in := pick(order.ID, outbound.PickLine{ItemID: order.Items[0].ID, QuantityPicked: 2})
	in.IdempotencyKey = "scan-1"
	_, err := e.service.Pick(ctx, in)
	require.NoError(t, err)

	_, err = e.service.Pick(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(2), e.entry(t, e.widget.ID).ReservedQuantity)
}

func TestCreateRequiresKnownProduct(t *testing.T) {
	e := newEnv(t)
	_, err := e.service.Create(context.Background(), outbound.CreateInput{CustomerName: "ACME", Items: []outbound.CreateItemInput{
		{ProductID: 404, LocationID: e.bin.ID, QuantityOrdered: 1},
	}})
	require.ErrorIs(t, err, inventory.ErrNotFound)

	_, err = e.service.Create(context.Background(), outbound.CreateInput{CustomerName: "  "})
	require.ErrorIs(t, err, inventory.ErrValidation)
}

func TestListFiltersByCustomerAndStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.widget.ID, 10)
	item := []outbound.CreateItemInput{{ProductID: e.widget.ID, LocationID: e.bin.ID, QuantityOrdered: 1}}
	var ids []int64
	for _, customer := range []string{"Acme Corp", "Globex", "acme labs"} {
		order, err := e.service.Create(ctx, outbound.CreateInput{CustomerName: customer, Items: item})
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}
	require.NoError(t, e.service.Delete(ctx, outbound.TransitionInput{OrderID: ids[1]}))
	_, err := e.service.Cancel(ctx, outbound.TransitionInput{OrderID: ids[2]})
	require.NoError(t, err)

	orders, meta, err := e.service.List(ctx, outbound.ListFilter{CustomerName: "ACME"})
	require.NoError(t, err)
	require.Equal(t, 2, meta.Total)
	require.Equal(t, []int64{ids[0], ids[2]}, []int64{orders[0].ID, orders[1].ID})

	orders, meta, err = e.service.List(ctx, outbound.ListFilter{CustomerName: "acme", Status: outbound.StatusCancelled})
	require.NoError(t, err)
	require.Equal(t, 1, meta.Total)
	require.Equal(t, ids[2], orders[0].ID)

	orders, meta, err = e.service.List(ctx, outbound.ListFilter{Page: 3, PerPage: 1})
	require.NoError(t, err)
	require.Equal(t, shared.Pagination{Page: 3, PerPage: 1, Total: 2, TotalPages: 2}, meta)
	require.Empty(t, orders)

	_, _, err = e.service.List(ctx, outbound.ListFilter{Status: "LOST"})
	require.ErrorIs(t, err, inventory.ErrValidation)
}
