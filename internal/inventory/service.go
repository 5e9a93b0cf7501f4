package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/barstock/internal/platform/httpx"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// ErrEmptyBatch is returned when a batch finishes without touching any stock.
var ErrEmptyBatch = fmt.Errorf("inventory: batch recorded no movements: %w", httpx.ErrValidation)

const lowStockCacheKey = "inventory:low-stock"

// TxRepository exposes the row-level operations a batch runs inside its
// transaction. Lock methods take exclusive row locks held until commit.
type TxRepository interface {
	LockItems(ctx context.Context, ids []int64) ([]StockItem, error)
	LockPrebatches(ctx context.Context, ids []int64) ([]Prebatch, error)
	InsertPrebatch(ctx context.Context, p Prebatch) (int64, error)
	InsertEvent(ctx context.Context, e Event) (int64, error)
	InsertMovements(ctx context.Context, eventID int64, movements []Movement) error
	UpdateItemStock(ctx context.Context, itemID int64, units float64) error
	UpdatePrebatchStock(ctx context.Context, prebatchID int64, ml float64) error
	ClaimIdempotencyKey(ctx context.Context, module, key string) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLowStock(ctx context.Context) ([]StockItem, error)
	ListPrebatches(ctx context.Context, activeOnly bool) ([]Prebatch, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort is the versioned read cache invalidated after each batch.
type CachePort interface {
	Key(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// MetricsPort records batch outcomes.
type MetricsPort interface {
	ObserveStockBatch(kind, outcome string, elapsed time.Duration)
}

// Service coordinates stock batches and stock read models.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   CachePort
	metrics MetricsPort
	logger  *slog.Logger
	ledger  LedgerWriter
	now     func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache   CachePort
	Metrics MetricsPort
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		logger:  logger,
		ledger:  NewLedgerWriter(now),
		now:     now,
	}
}

// BatchResult is what a committed batch recorded.
type BatchResult struct {
	Event       Event
	Movements   []Movement
	Allocations []Allocation
}

// RunBatch runs fn inside one transaction and records every change it made
// under a single event. Any error rolls back all of it, including the
// idempotency key claim.
func (s *Service) RunBatch(ctx context.Context, in EventInput, fn BatchFunc) (BatchResult, error) {
	if fn == nil {
		return BatchResult{}, errors.New("inventory: batch func required")
	}
	if !in.Kind.Valid() {
		return BatchResult{}, fmt.Errorf("inventory: unknown event kind %q", in.Kind)
	}
	started := time.Now()
	var result BatchResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, "stock:"+string(in.Kind), in.IdempotencyKey); err != nil {
				return err
			}
		}
		b := newBatch(tx)
		if err := fn(ctx, b); err != nil {
			return err
		}
		deltas := b.Deltas()
		if len(deltas) == 0 {
			return ErrEmptyBatch
		}
		event, movements, err := s.ledger.Write(ctx, tx, in, deltas)
		if err != nil {
			return err
		}
		result = BatchResult{Event: event, Movements: movements, Allocations: b.Allocations()}
		return nil
	})
	s.observe(in.Kind, err, time.Since(started))
	if err != nil {
		return BatchResult{}, err
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   fmt.Sprintf("stock:%s", in.Kind),
			Entity:   "stock_evento",
			EntityID: result.Event.Reference,
			Meta: map[string]any{
				"event_id":    result.Event.ID,
				"movements":   len(result.Movements),
				"description": in.Description,
			},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("reference", result.Event.Reference), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("cache bump failed", slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Service) observe(kind EventKind, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "committed"
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrUnprocessable), errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrConflict):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.ObserveStockBatch(string(kind), outcome, elapsed)
}

// AdjustmentLine sets one item or prebatch to a counted balance.
type AdjustmentLine struct {
	Ref     IngredientRef
	Counted float64
}

// AdjustmentInput is one physical count batch.
type AdjustmentInput struct {
	Description    string
	ActorID        int64
	IdempotencyKey string
	Lines          []AdjustmentLine
}

// PostAdjustments records counted balances as one AJUSTE event.
func (s *Service) PostAdjustments(ctx context.Context, input AdjustmentInput) (BatchResult, error) {
	if len(input.Lines) == 0 {
		return BatchResult{}, fmt.Errorf("%w: adjustment has no lines", ErrInvalidQuantity)
	}
	for _, line := range input.Lines {
		if line.Ref.IsZero() {
			return BatchResult{}, ErrInvalidReference
		}
		if line.Counted < 0 {
			return BatchResult{}, fmt.Errorf("%w: counted %.5f for %s", ErrInvalidQuantity, line.Counted, line.Ref)
		}
	}
	in := EventInput{
		Kind:           EventAdjustment,
		Description:    input.Description,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	}
	return s.RunBatch(ctx, in, func(ctx context.Context, b *Batch) error {
		for _, line := range input.Lines {
			if _, err := b.SetBalance(ctx, line.Ref, line.Counted); err != nil {
				return err
			}
		}
		return nil
	})
}

// PurchaseLine adds received container units to an item.
type PurchaseLine struct {
	ItemID int64
	Units  float64
}

// PurchaseInput is one goods receipt.
type PurchaseInput struct {
	Description    string
	ActorID        int64
	IdempotencyKey string
	Lines          []PurchaseLine
}

// PostPurchases increments item balances as one COMPRA event.
func (s *Service) PostPurchases(ctx context.Context, input PurchaseInput) (BatchResult, error) {
	if len(input.Lines) == 0 {
		return BatchResult{}, fmt.Errorf("%w: purchase has no lines", ErrInvalidQuantity)
	}
	for _, line := range input.Lines {
		if line.ItemID <= 0 {
			return BatchResult{}, ErrInvalidReference
		}
		if line.Units <= 0 {
			return BatchResult{}, fmt.Errorf("%w: received %.5f units for item %d", ErrInvalidQuantity, line.Units, line.ItemID)
		}
	}
	in := EventInput{
		Kind:           EventPurchase,
		Description:    input.Description,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	}
	return s.RunBatch(ctx, in, func(ctx context.Context, b *Batch) error {
		for _, line := range input.Lines {
			if _, err := b.Receive(ctx, line.ItemID, line.Units); err != nil {
				return err
			}
		}
		return nil
	})
}

// LowStockItem is an active item at or below its threshold.
type LowStockItem struct {
	ID         int64   `json:"id"`
	Label      string  `json:"label"`
	Unit       Unit    `json:"unit"`
	StockUnits float64 `json:"stock_unidades"`
	Threshold  float64 `json:"stock_minimo"`
}

// LowStock lists items needing replenishment, served from cache when possible.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	load := func(ctx context.Context) (any, error) {
		items, err := s.repo.ListLowStock(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]LowStockItem, 0, len(items))
		for _, item := range items {
			out = append(out, LowStockItem{
				ID:         item.ID,
				Label:      item.Label(),
				Unit:       item.Unit,
				StockUnits: item.StockUnits,
				Threshold:  item.LowStockThreshold,
			})
		}
		return out, nil
	}
	if s.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return v.([]LowStockItem), nil
	}
	key, err := s.cache.Key(ctx, lowStockCacheKey)
	if err != nil {
		return nil, err
	}
	var out []LowStockItem
	if err := s.cache.FetchJSON(ctx, key, &out, load); err != nil {
		return nil, err
	}
	return out, nil
}

// PrebatchView is a prebatch with its status at read time.
type PrebatchView struct {
	Prebatch
	Status PrebatchStatus
}

// Prebatches lists prebatches with their derived status.
func (s *Service) Prebatches(ctx context.Context, activeOnly bool) ([]PrebatchView, error) {
	rows, err := s.repo.ListPrebatches(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]PrebatchView, 0, len(rows))
	for _, p := range rows {
		out = append(out, PrebatchView{Prebatch: p, Status: p.Status(now)})
	}
	return out, nil
}

// Movements returns the ledger history of one entity, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Ref.IsZero() {
		return nil, ErrInvalidReference
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListMovements(ctx, filter)
}
