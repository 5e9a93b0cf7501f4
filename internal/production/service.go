package production

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/odyssey-erp/barstock/internal/inventory"
)

// InventoryPort runs stock batches.
type InventoryPort interface {
	RunBatch(ctx context.Context, in inventory.EventInput, fn inventory.BatchFunc) (inventory.BatchResult, error)
}

// Service registers production runs.
type Service struct {
	stock  InventoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(stock InventoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stock: stock, logger: logger, now: time.Now}
}

// Register debits every ingredient and creates the prebatch with its output
// volume. Ingredients are given explicitly; no recipe is consulted. The whole
// run is rolled back when any ingredient falls short.
func (s *Service) Register(ctx context.Context, input Input) (Result, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate(&input); err != nil {
		return Result{}, err
	}

	var created inventory.Prebatch
	batch, err := s.stock.RunBatch(ctx, inventory.EventInput{
		Kind:           inventory.EventProduction,
		Description:    "produccion: " + input.Name,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	}, func(ctx context.Context, b *inventory.Batch) error {
		for _, ing := range input.Ingredients {
			key := inventory.ItemRef(ing.ItemID).String()
			_, err := b.Consume(ctx, inventory.GroupDemand{
				Key:        key,
				RequiredML: ing.ML,
				Candidates: []inventory.PrioritizedRef{{Ref: inventory.ItemRef(ing.ItemID), Priority: 1}},
			})
			if err != nil {
				return fmt.Errorf("consume %s: %w", key, err)
			}
		}
		p, err := b.CreatePrebatch(ctx, inventory.Prebatch{
			Name:       input.Name,
			ProducedAt: input.ProducedAt,
			ExpiresAt:  input.ExpiresAt,
			InitialML:  input.OutputML,
			Lot:        input.Lot,
			Category:   input.Category,
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	created.RemainingML = created.InitialML
	s.logger.Info("prebatch produced",
		slog.Int64("prebatch_id", created.ID),
		slog.String("name", created.Name),
		slog.Float64("output_ml", created.InitialML),
		slog.String("reference", batch.Event.Reference))
	return Result{Prebatch: created, Batch: batch}, nil
}

func (s *Service) validate(input *Input) error {
	if input.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidRun)
	}
	if !(input.OutputML > 0) || math.IsInf(input.OutputML, 0) {
		return fmt.Errorf("%w: output %.5f ml", inventory.ErrInvalidQuantity, input.OutputML)
	}
	if len(input.Ingredients) == 0 {
		return ErrNoIngredients
	}
	if input.ProducedAt.IsZero() {
		input.ProducedAt = s.now().UTC()
	}
	if input.ExpiresAt != nil && input.ExpiresAt.Before(input.ProducedAt) {
		return fmt.Errorf("%w: expiry before production date", ErrInvalidRun)
	}
	seen := make(map[int64]struct{}, len(input.Ingredients))
	for _, ing := range input.Ingredients {
		if ing.ItemID <= 0 {
			return fmt.Errorf("%w: item %d", inventory.ErrInvalidReference, ing.ItemID)
		}
		if !(ing.ML > 0) || math.IsInf(ing.ML, 0) {
			return fmt.Errorf("%w: %.5f ml of item %d", inventory.ErrInvalidQuantity, ing.ML, ing.ItemID)
		}
		if _, dup := seen[ing.ItemID]; dup {
			return fmt.Errorf("%w: item %d listed twice", ErrInvalidRun, ing.ItemID)
		}
		seen[ing.ItemID] = struct{}{}
	}
	return nil
}
