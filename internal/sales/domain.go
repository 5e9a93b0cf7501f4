// Package sales turns sold product quantities into one stock-consuming batch.
package sales

import (
	"fmt"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
)

var (
	// ErrNoLines is returned for an upload without sale rows.
	ErrNoLines = fmt.Errorf("sales: no sale rows: %w", httpx.ErrValidation)
	// ErrInvalidLine flags a row with a missing product or bad quantity.
	ErrInvalidLine = fmt.Errorf("sales: invalid row: %w", httpx.ErrValidation)
	// ErrInvalidWorkbook is returned when an upload cannot be read as a sales sheet.
	ErrInvalidWorkbook = fmt.Errorf("sales: invalid workbook: %w", httpx.ErrValidation)
)

// ============================================================================
// INPUT
// ============================================================================

// Line is one sold product. Variant 0 lets the resolver pick the lowest.
type Line struct {
	Row      int     `json:"row,omitempty"`
	Product  string  `json:"producto" validate:"required,max=200"`
	Quantity float64 `json:"cantidad" validate:"gt=0"`
	Variant  int     `json:"variante" validate:"gte=0"`
}

// Input is one sales file or JSON submission.
type Input struct {
	Description    string
	ActorID        int64
	IdempotencyKey string
	Lines          []Line
}

// ============================================================================
// RESULT
// ============================================================================

// LineResult reports how a processed row was resolved.
type LineResult struct {
	Row       int     `json:"row"`
	Product   string  `json:"producto"`
	ProductID int64   `json:"producto_id"`
	Quantity  float64 `json:"cantidad"`
	Variant   int     `json:"variante"`
	Ambiguous bool    `json:"variante_ambigua,omitempty"`
	Groups    int     `json:"groups"`
}

// SkippedLine is a row that consumed nothing.
type SkippedLine struct {
	Row     int    `json:"row"`
	Product string `json:"producto"`
	Reason  string `json:"reason"`
}

// Result is the outcome of a processed sales batch. Batch is nil when no
// row needed stock.
type Result struct {
	Batch     *inventory.BatchResult
	Processed []LineResult
	Skipped   []SkippedLine
}
