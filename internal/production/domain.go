// Package production registers prebatch runs: explicit ingredient
// consumption plus the new prebatch, written as one PRODUCCION event.
package production

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
)

var (
	// ErrNoIngredients is returned for a run that consumes nothing.
	ErrNoIngredients = fmt.Errorf("production: at least one ingredient required: %w", httpx.ErrValidation)
	// ErrInvalidRun flags inconsistent run attributes.
	ErrInvalidRun = fmt.Errorf("production: invalid run: %w", httpx.ErrValidation)
)

// Ingredient is one item consumed by a run, in ml-equivalents.
type Ingredient struct {
	ItemID int64
	ML     float64
}

// Input describes one production run.
type Input struct {
	Name           string
	ProducedAt     time.Time
	ExpiresAt      *time.Time
	OutputML       float64
	Lot            string
	Category       string
	Ingredients    []Ingredient
	ActorID        int64
	IdempotencyKey string
}

// Result is the committed run.
type Result struct {
	Prebatch inventory.Prebatch
	Batch    inventory.BatchResult
}
