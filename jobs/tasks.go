package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan reports products below their minimum stock level.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskDashboardWarmup rebuilds the cached dashboard summary.
	TaskDashboardWarmup = "reporting:dashboard_warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockScanPayload bounds how many shortfalls are logged individually.
type LowStockScanPayload struct {
	LogLimit int `json:"log_limit"`
}

// IdempotencyCleanupPayload sets the key retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(logLimit int) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{LogLimit: logLimit})
}

// NewDashboardWarmupTask constructs the dashboard warmup task.
func NewDashboardWarmupTask() (*asynq.Task, error) {
	return newTask(TaskDashboardWarmup, struct{}{})
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{Retention: retention})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
