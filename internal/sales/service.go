package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/recipes"
)

// RecipePort exposes the product catalog and recipe rules.
type RecipePort interface {
	Catalog(ctx context.Context) (*recipes.Catalog, error)
	Rules(ctx context.Context, productID int64) ([]recipes.Rule, error)
}

// InventoryPort runs stock batches.
type InventoryPort interface {
	RunBatch(ctx context.Context, in inventory.EventInput, fn inventory.BatchFunc) (inventory.BatchResult, error)
}

// Service processes sales batches.
type Service struct {
	recipes RecipePort
	stock   InventoryPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(recipes RecipePort, stock InventoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{recipes: recipes, stock: stock, logger: logger}
}

type resolvedLine struct {
	line       Line
	resolution recipes.Resolution
}

// Process resolves every row and consumes their stock as one VENTA event.
// Rows whose product has no recipe are skipped; any other failure aborts
// the whole batch without writing.
func (s *Service) Process(ctx context.Context, input Input) (Result, error) {
	if len(input.Lines) == 0 {
		return Result{}, ErrNoLines
	}
	for i, line := range input.Lines {
		if line.Row == 0 {
			input.Lines[i].Row = i + 1
		}
		if strings.TrimSpace(line.Product) == "" {
			return Result{}, fmt.Errorf("%w: row %d has no product", ErrInvalidLine, input.Lines[i].Row)
		}
		if !(line.Quantity > 0) || math.IsInf(line.Quantity, 0) || line.Variant < 0 {
			return Result{}, fmt.Errorf("%w: row %d (%s)", ErrInvalidLine, input.Lines[i].Row, line.Product)
		}
	}

	catalog, err := s.recipes.Catalog(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load catalog: %w", err)
	}

	var (
		result   Result
		resolved []resolvedLine
		rules    = map[int64][]recipes.Rule{}
	)
	for _, line := range input.Lines {
		product, ok := catalog.Lookup(line.Product)
		if !ok {
			return Result{}, &inventory.NotFoundError{Entity: "product", Key: line.Product}
		}
		productRules, ok := rules[product.ID]
		if !ok {
			productRules, err = s.recipes.Rules(ctx, product.ID)
			if err != nil {
				return Result{}, fmt.Errorf("load recipe of %s: %w", product.Name, err)
			}
			rules[product.ID] = productRules
		}
		res, err := recipes.Resolve(product, productRules, line.Variant, line.Quantity)
		if errors.Is(err, recipes.ErrNoRecipeFound) {
			s.logger.Warn("sale row skipped", slog.Int("row", line.Row), slog.String("product", product.Name), slog.String("reason", "no recipe"))
			result.Skipped = append(result.Skipped, SkippedLine{Row: line.Row, Product: line.Product, Reason: "no recipe"})
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("row %d: %w", line.Row, err)
		}
		if res.Ambiguous {
			s.logger.Warn("recipe variant not specified",
				slog.Int("row", line.Row),
				slog.String("product", product.Name),
				slog.Int("variant", res.Variant),
				slog.Any("variants", res.Variants))
		}
		resolved = append(resolved, resolvedLine{line: line, resolution: res})
		result.Processed = append(result.Processed, LineResult{
			Row:       line.Row,
			Product:   product.Name,
			ProductID: product.ID,
			Quantity:  line.Quantity,
			Variant:   res.Variant,
			Ambiguous: res.Ambiguous,
			Groups:    len(res.Demands),
		})
	}
	if len(resolved) == 0 {
		return result, nil
	}

	description := input.Description
	if description == "" {
		description = fmt.Sprintf("ventas: %d filas", len(input.Lines))
	}
	batch, err := s.stock.RunBatch(ctx, inventory.EventInput{
		Kind:           inventory.EventSale,
		Description:    description,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	}, func(ctx context.Context, b *inventory.Batch) error {
		for _, rl := range resolved {
			for _, demand := range rl.resolution.Demands {
				if _, err := b.Consume(ctx, demand); err != nil {
					return fmt.Errorf("row %d (%s): %w", rl.line.Row, rl.line.Product, err)
				}
			}
		}
		return nil
	})
	if errors.Is(err, inventory.ErrEmptyBatch) {
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}
	result.Batch = &batch
	return result, nil
}
