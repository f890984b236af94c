package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const defaultLowStockLogLimit = 50

// LowStockReader lists products below their minimum level.
type LowStockReader interface {
	LowStock(ctx context.Context) ([]reporting.LowStockItem, error)
}

// LowStockScanJob logs shortfalls and exports their count as a gauge.
type LowStockScanJob struct {
	Reader  LowStockReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(reader LowStockReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Reader: reader, Logger: logger, Metrics: metrics}
}

// Handle processes low-stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reader == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.LogLimit <= 0 {
		payload.LogLimit = defaultLowStockLogLimit
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	items, err := j.Reader.LowStock(ctx)
	if err != nil {
		j.logger().Error("low stock scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetLowStock(len(items))

	for i, item := range items {
		if i == payload.LogLimit {
			j.logger().Warn("low stock list truncated", slog.Int("remaining", len(items)-i))
			break
		}
		j.logger().Warn("product below minimum stock",
			slog.Int64("product_id", item.ProductID),
			slog.String("sku", item.SKU),
			slog.Int64("current_stock", item.CurrentStock),
			slog.Int64("min_stock_level", item.MinStockLevel),
			slog.Int64("shortfall", item.Difference))
	}
	j.logger().Info("low stock scan completed", slog.Int("products", len(items)))
	return tracker.End(nil)
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
