package masterdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata"
	"github.com/odyssey-erp/odyssey-wms/internal/memstore"
)

func TestCreateRunsChangeHooksOnSuccess(t *testing.T) {
	store := memstore.New(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) })
	var calls int
	svc := masterdata.NewService(store, func(context.Context) { calls++ })
	ctx := context.Background()

	_, err := svc.CreateLocation(ctx, inventory.Location{Code: " A-01 ", Capacity: 10})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, inventory.Product{SKU: "BOLT", Name: "Bolt", MinStockLevel: 3})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	_, err = svc.CreateProduct(ctx, inventory.Product{SKU: "BOLT", Name: "Bolt again"})
	require.ErrorIs(t, err, masterdata.ErrDuplicate)
	_, err = svc.CreateLocation(ctx, inventory.Location{Code: "A-02"})
	require.ErrorIs(t, err, inventory.ErrValidation)
	require.Equal(t, 2, calls)
}

func TestListCategoriesIsDistinctAndSorted(t *testing.T) {
	store := memstore.New(time.Now)
	svc := masterdata.NewService(store)
	ctx := context.Background()
	for i, category := range []string{"Tools", "", "Adhesives", "Tools"} {
		_, err := svc.CreateProduct(ctx, inventory.Product{SKU: string(rune('A' + i)), Name: "Item", Category: category})
		require.NoError(t, err)
	}

	categories, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Adhesives", "Tools"}, categories)
}
