package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// Seed is the master data and opening stock loaded at startup.
type Seed struct {
	Locations []inventory.Location `json:"locations"`
	Products  []inventory.Product  `json:"products"`
	Stock     []SeedStock          `json:"stock"`
}

// SeedStock is an opening balance, referenced by SKU and location code.
type SeedStock struct {
	SKU          string `json:"sku"`
	LocationCode string `json:"location_code"`
	Quantity     int64  `json:"quantity"`
}

// Adjuster books opening balances. *inventory.Service satisfies it.
type Adjuster interface {
	Adjust(ctx context.Context, in inventory.AdjustInput) (inventory.StockEntry, error)
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("masterdata: read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("masterdata: parse seed %s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed creates missing locations and products, then books every opening
// balance as an adjustment so it goes through the ledger's capacity checks.
// Records that already exist are reused, so a seed can be applied twice, but
// opening stock is booked each time.
func (s *Service) ApplySeed(ctx context.Context, seed Seed, adjuster Adjuster) error {
	locations := make(map[string]int64, len(seed.Locations))
	for _, loc := range seed.Locations {
		created, err := s.CreateLocation(ctx, loc)
		if errors.Is(err, ErrDuplicate) {
			created, err = s.repo.GetLocationByCode(ctx, loc.Code)
		}
		if err != nil {
			return fmt.Errorf("masterdata: seed location %s: %w", loc.Code, err)
		}
		locations[created.Code] = created.ID
	}
	products := make(map[string]int64, len(seed.Products))
	for _, p := range seed.Products {
		created, err := s.CreateProduct(ctx, p)
		if errors.Is(err, ErrDuplicate) {
			created, err = s.repo.GetProductBySKU(ctx, p.SKU)
		}
		if err != nil {
			return fmt.Errorf("masterdata: seed product %s: %w", p.SKU, err)
		}
		products[created.SKU] = created.ID
	}
	if len(seed.Stock) > 0 && adjuster == nil {
		return errors.New("masterdata: seed has opening stock but no adjuster")
	}
	for _, st := range seed.Stock {
		productID, ok := products[st.SKU]
		if !ok {
			return fmt.Errorf("masterdata: seed stock references unknown sku %q", st.SKU)
		}
		locationID, ok := locations[st.LocationCode]
		if !ok {
			return fmt.Errorf("masterdata: seed stock references unknown location %q", st.LocationCode)
		}
		if _, err := adjuster.Adjust(ctx, inventory.AdjustInput{
			ProductID:      productID,
			LocationID:     locationID,
			QuantityChange: st.Quantity,
			Reason:         "opening balance",
		}); err != nil {
			return fmt.Errorf("masterdata: seed stock %s@%s: %w", st.SKU, st.LocationCode, err)
		}
	}
	return nil
}
