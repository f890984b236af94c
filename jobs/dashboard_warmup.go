package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
)

// DashboardReader exposes the reporting views the warmup touches.
type DashboardReader interface {
	Summary(ctx context.Context) (reporting.Summary, error)
	LowStock(ctx context.Context) ([]reporting.LowStockItem, error)
}

// DashboardWarmupJob primes the dashboard cache after the nightly idle window
// and refreshes the low-stock gauge from the same pass.
type DashboardWarmupJob struct {
	Reporting DashboardReader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(reader DashboardReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Reporting: reader, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reporting == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskDashboardWarmup)
	start := time.Now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	var summary reporting.Summary
	var low []reporting.LowStockItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = j.Reporting.Summary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		low, err = j.Reporting.LowStock(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		j.logger().Error("dashboard warmup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetLowStock(len(low))

	j.logger().Info("dashboard warmed",
		slog.Int("products", summary.TotalProducts),
		slog.Int64("units", summary.TotalStockUnits),
		slog.Int("low_stock", len(low)),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
