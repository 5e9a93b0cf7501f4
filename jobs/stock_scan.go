package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/barstock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/barstock/internal/jobs"
)

// LowStockSource lists items under their minimum.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// PrebatchSource lists prebatches with their derived status.
type PrebatchSource interface {
	Prebatches(ctx context.Context, activeOnly bool) ([]inventory.PrebatchView, error)
}

// LowStockScanJob logs every item at or under its minimum.
type LowStockScanJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger)
	items, err := j.Source.LowStock(ctx)
	if err != nil {
		logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	for _, item := range items {
		logger.Warn("item below minimum",
			slog.Int64("item_id", item.ID),
			slog.String("item", item.Label),
			slog.Float64("stock_unidades", item.StockUnits),
			slog.Float64("stock_minimo", item.Threshold))
	}
	j.Metrics.SetFindings("low_stock", len(items))
	logger.Info("completed low stock scan", slog.Int("items", len(items)))
	return nil
}

// PrebatchExpiryScanJob logs active prebatches in warning or expired state.
type PrebatchExpiryScanJob struct {
	Source  PrebatchSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPrebatchExpiryScanJob initialises the prebatch scan handler.
func NewPrebatchExpiryScanJob(source PrebatchSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *PrebatchExpiryScanJob {
	return &PrebatchExpiryScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *PrebatchExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("prebatch scan: handler not configured")
	}
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskPrebatchExpiryScan)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger)
	views, err := j.Source.Prebatches(ctx, true)
	if err != nil {
		logger.Error("prebatch scan failed", slog.Any("error", err))
		return err
	}
	var warning, expired int
	for _, v := range views {
		switch v.Status {
		case inventory.StatusWarning:
			warning++
		case inventory.StatusExpired:
			expired++
		default:
			continue
		}
		attrs := []any{
			slog.Int64("prebatch_id", v.ID),
			slog.String("prebatch", v.Name),
			slog.String("estado", string(v.Status)),
			slog.Float64("cantidad_actual_ml", v.RemainingML),
			slog.Time("fecha_produccion", v.ProducedAt),
		}
		if v.ExpiresAt != nil {
			attrs = append(attrs, slog.Time("fecha_vencimiento", *v.ExpiresAt))
		}
		logger.Warn("prebatch needs attention", attrs...)
	}
	j.Metrics.SetFindings("prebatch_warning", warning)
	j.Metrics.SetFindings("prebatch_expired", expired)
	logger.Info("completed prebatch scan",
		slog.Int("prebatches", len(views)),
		slog.Int("warning", warning),
		slog.Int("expired", expired))
	return nil
}

// KeyCleaner prunes idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes keys past their retention.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup. Retention defaults to seven days.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 7 * 24
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		loggerOr(j.Logger).Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	loggerOr(j.Logger).Info("idempotency keys pruned", slog.Int64("removed", removed))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
