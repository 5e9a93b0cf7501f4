package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan reports items at or under their minimum.
	TaskLowStockScan = "stock:low-scan"
	// TaskPrebatchExpiryScan reports prebatches nearing or past expiry.
	TaskPrebatchExpiryScan = "prebatch:expiry-scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ScanPayload carries scheduling metadata for the stock scans.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CleanupPayload sets how long idempotency keys are kept.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	return newScanTask(TaskLowStockScan, at)
}

// NewPrebatchExpiryScanTask constructs the prebatch expiry scan task.
func NewPrebatchExpiryScanTask(at time.Time) (*asynq.Task, error) {
	return newScanTask(TaskPrebatchExpiryScan, at)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

func newScanTask(typ string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
