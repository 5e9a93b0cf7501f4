package recipes

import (
	"fmt"
	"math"
	"sort"

	"github.com/odyssey-erp/barstock/internal/inventory"
)

// Resolution is the stock demand of one sold quantity of a product.
type Resolution struct {
	ProductID int64
	Variant   int
	// Variants lists every variant the product has, ascending.
	Variants []int
	// Ambiguous is set when no variant was requested and the product has
	// more than one; the lowest was used.
	Ambiguous bool
	Demands   []inventory.GroupDemand
}

// Resolve expands rules of product into one demand per substitution group
// for quantity units sold. variant 0 selects the lowest-numbered variant.
//
// The required volume of a group is quantity times the consumption of its
// first-priority rule; candidates keep their priority order and a duplicate
// ingredient inside one group is listed once.
func Resolve(product Product, rules []Rule, variant int, quantity float64) (Resolution, error) {
	if len(rules) == 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrNoRecipeFound, product.Name)
	}
	if !(quantity > 0) || math.IsInf(quantity, 0) {
		return Resolution{}, fmt.Errorf("%w: %s sold %.3f", inventory.ErrInvalidQuantity, product.Name, quantity)
	}
	for _, r := range rules {
		if r.Ingredient.IsZero() {
			return Resolution{}, fmt.Errorf("%w: rule %d of %s has no ingredient", ErrInvalidRule, r.ID, product.Name)
		}
		if !(r.ConsumptionML >= 0) || math.IsInf(r.ConsumptionML, 0) {
			return Resolution{}, fmt.Errorf("%w: rule %d of %s consumes %.3f ml", ErrInvalidRule, r.ID, product.Name, r.ConsumptionML)
		}
	}

	variants := variantsOf(rules)
	res := Resolution{ProductID: product.ID, Variants: variants}
	switch {
	case variant == 0:
		res.Variant = variants[0]
		res.Ambiguous = len(variants) > 1
	case containsInt(variants, variant):
		res.Variant = variant
	default:
		return Resolution{}, fmt.Errorf("%w: %s has no variant %d", ErrVariantNotFound, product.Name, variant)
	}

	selected := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if variantOf(r) == res.Variant {
			selected = append(selected, r)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })

	index := map[string]int{}
	var groups [][]Rule
	for _, r := range selected {
		key := r.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Priority < group[j].Priority })
		first := group[0]
		required := quantity * first.ConsumptionML
		if math.IsInf(required, 0) {
			return Resolution{}, fmt.Errorf("%w: %s sold %g overflows group %s", inventory.ErrInvalidQuantity, product.Name, quantity, first.GroupKey())
		}
		demand := inventory.GroupDemand{
			Key:        first.GroupKey(),
			Label:      first.Label,
			RequiredML: inventory.Round(required),
		}
		seen := map[inventory.IngredientRef]bool{}
		for _, r := range group {
			if seen[r.Ingredient] {
				continue
			}
			seen[r.Ingredient] = true
			demand.Candidates = append(demand.Candidates, inventory.PrioritizedRef{Ref: r.Ingredient, Priority: r.Priority})
		}
		res.Demands = append(res.Demands, demand)
	}
	return res, nil
}

func variantOf(r Rule) int {
	if r.Variant <= 0 {
		return 1
	}
	return r.Variant
}

func variantsOf(rules []Rule) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range rules {
		v := variantOf(r)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
