package reporting

import "time"

// UncategorizedLabel names the bucket for products without a category.
const UncategorizedLabel = "Uncategorized"

// SeriesDays is the length of the trailing movement window.
const SeriesDays = 30

// ProductStock is one product joined with its stock totals across all
// locations. Products without entries carry zero totals and EntryCount 0.
type ProductStock struct {
	ProductID     int64
	SKU           string
	Name          string
	Category      string
	MinStockLevel int64
	Quantity      int64
	Reserved      int64
	EntryCount    int
}

// LocationUsage is one location with its occupied units.
type LocationUsage struct {
	LocationID int64
	Code       string
	Capacity   int64
	Occupied   int64
}

// LocationCapacity is the capacity view of a single location.
type LocationCapacity struct {
	LocationID        int64  `json:"location_id"`
	Code              string `json:"code"`
	TotalCapacity     int64  `json:"total_capacity"`
	AvailableCapacity int64  `json:"available_capacity"`
	UsedCapacity      int64  `json:"used_capacity"`
}

// DailyMovement sums movement quantity deltas for one UTC day.
type DailyMovement struct {
	Day      time.Time
	Inbound  int64
	Outbound int64
}

// LowStockItem is a product whose total stock is below its minimum level.
type LowStockItem struct {
	ProductID     int64  `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	CurrentStock  int64  `json:"current_stock"`
	MinStockLevel int64  `json:"min_stock_level"`
	Difference    int64  `json:"difference"`
}

// LocationStock is one location's share of a product rollup.
type LocationStock struct {
	LocationID       int64  `json:"location_id"`
	LocationCode     string `json:"location_code"`
	Quantity         int64  `json:"quantity"`
	ReservedQuantity int64  `json:"reserved_quantity"`
	Available        int64  `json:"available"`
}

// ProductRollup is a product's stock across all locations.
type ProductRollup struct {
	ProductID     int64           `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Locations     []LocationStock `json:"locations"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalReserved int64           `json:"total_reserved"`
	Available     int64           `json:"available"`
}

// Utilization summarises warehouse capacity usage.
type Utilization struct {
	TotalCapacity         int64   `json:"total_capacity"`
	OccupiedUnits         int64   `json:"occupied_units"`
	UtilizationPercentage float64 `json:"utilization_percentage"`
	AvailableCapacity     int64   `json:"available_capacity"`
}

// SeriesPoint is one day of the movement series.
type SeriesPoint struct {
	Date     string `json:"date"`
	Inbound  int64  `json:"inbound"`
	Outbound int64  `json:"outbound"`
}

// CategoryStock totals units per product category.
type CategoryStock struct {
	Category   string `json:"category"`
	TotalUnits int64  `json:"total_units"`
}

// TopProduct ranks a product by total stock.
type TopProduct struct {
	ProductID  int64  `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	TotalStock int64  `json:"total_stock"`
}

// Summary is the dashboard view combining every aggregate.
type Summary struct {
	TotalProducts         int             `json:"total_products"`
	TotalStockUnits       int64           `json:"total_stock_units"`
	LowStockProductsCount int             `json:"low_stock_products_count"`
	StockByCategory       []CategoryStock `json:"stock_by_category"`
	MovementsLast30Days   []SeriesPoint   `json:"movements_last_30_days"`
	TotalInbound30Days    int64           `json:"total_inbound_30_days"`
	TotalOutbound30Days   int64           `json:"total_outbound_30_days"`
	TopProductsByStock    []TopProduct    `json:"top_products_by_stock"`
	LowStockAlerts        []LowStockItem  `json:"low_stock_alerts"`
	WarehouseUtilization  Utilization     `json:"warehouse_utilization"`
	GeneratedAt           time.Time       `json:"generated_at"`
}
