// Package recipes holds products, their recipe rules and the resolver that
// turns a sold quantity into per-group stock demands.
package recipes

import (
	"fmt"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
)

var (
	// ErrNoRecipeFound marks a product without rules; callers skip it.
	ErrNoRecipeFound = fmt.Errorf("recipes: product has no recipe: %w", httpx.ErrNotFound)
	// ErrInvalidRule flags a rule whose ingredient reference is malformed.
	ErrInvalidRule = fmt.Errorf("recipes: invalid rule: %w", httpx.ErrValidation)
	// ErrVariantNotFound is returned for an explicit variant the product lacks.
	ErrVariantNotFound = fmt.Errorf("recipes: variant not found: %w", httpx.ErrValidation)
)

// Product is a sellable menu item.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	GlasswareID int64  `json:"cristaleria_id,omitempty"`
	Active      bool   `json:"is_active"`
}

// Rule binds a product to one ingredient inside a substitution group.
type Rule struct {
	ID            int64
	ProductID     int64
	Ingredient    inventory.IngredientRef
	GroupID       int64
	ConsumptionML float64
	Priority      int
	Variant       int
	Label         string
}

// GroupKey identifies the substitution group a rule belongs to. Prebatch rules
// and rules without a brand stand alone under their ingredient.
func (r Rule) GroupKey() string {
	if r.GroupID != 0 && !r.Ingredient.IsPrebatch() {
		return fmt.Sprintf("marca:%d", r.GroupID)
	}
	return r.Ingredient.String()
}

// RuleInput is the write shape of a rule: exactly one of ItemID and
// PrebatchID must be set, matching IngredientType.
type RuleInput struct {
	IngredientType inventory.IngredientKind `json:"ingredient_type" validate:"required,oneof=item prebatch"`
	ItemID         int64                    `json:"item_id" validate:"gte=0"`
	PrebatchID     int64                    `json:"prebatch_id" validate:"gte=0"`
	BrandID        int64                    `json:"marca_id" validate:"gte=0"`
	ConsumptionML  float64                  `json:"consumo_ml" validate:"gt=0"`
	Priority       int                      `json:"prioridad_item" validate:"gte=0"`
	Variant        int                      `json:"recipe_variant" validate:"gte=0"`
}

// Rule converts in into a Rule for productID.
func (in RuleInput) Rule(productID int64) (Rule, error) {
	var ref inventory.IngredientRef
	switch in.IngredientType {
	case inventory.KindItem:
		if in.ItemID <= 0 || in.PrebatchID != 0 {
			return Rule{}, fmt.Errorf("%w: item rule needs item_id and no prebatch_id", ErrInvalidRule)
		}
		ref = inventory.ItemRef(in.ItemID)
	case inventory.KindPrebatch:
		if in.PrebatchID <= 0 || in.ItemID != 0 {
			return Rule{}, fmt.Errorf("%w: prebatch rule needs prebatch_id and no item_id", ErrInvalidRule)
		}
		ref = inventory.PrebatchRef(in.PrebatchID)
	default:
		return Rule{}, fmt.Errorf("%w: ingredient_type %q", ErrInvalidRule, in.IngredientType)
	}
	if in.ConsumptionML <= 0 {
		return Rule{}, fmt.Errorf("%w: consumo_ml must be > 0", ErrInvalidRule)
	}
	variant := in.Variant
	if variant == 0 {
		variant = 1
	}
	priority := in.Priority
	if priority == 0 {
		priority = 1
	}
	return Rule{
		ProductID:     productID,
		Ingredient:    ref,
		GroupID:       in.BrandID,
		ConsumptionML: in.ConsumptionML,
		Priority:      priority,
		Variant:       variant,
	}, nil
}

// Recipe is a product with all of its rules.
type Recipe struct {
	Product Product
	Rules   []Rule
}
