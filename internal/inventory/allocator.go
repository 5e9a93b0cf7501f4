package inventory

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// Epsilon is the ml/g tolerance below which a requirement counts as met.
	Epsilon = 1e-3
	// NegativeFloor is the lowest balance accepted before clamping to zero.
	NegativeFloor = -0.001
	// RoundingPlaces is the precision balances are written back with.
	RoundingPlaces = 5
)

// Candidate is one stock source inside a substitution group.
type Candidate struct {
	Ref           IngredientRef
	Label         string
	Priority      int
	StockUnits    float64
	ContainerSize float64
	Unit          Unit
	Factor        float64
}

// Available returns the ml-equivalent quantity the candidate can give.
func (c Candidate) Available() float64 {
	return c.StockUnits * c.ContainerSize * c.factor()
}

func (c Candidate) factor() float64 {
	if c.Factor <= 0 {
		return 1
	}
	return c.Factor
}

// Allocation records what one candidate gave towards a requirement. Drawn is
// the ml-equivalent removed, derived from the rounded Consumed.
type Allocation struct {
	Group    string        `json:"group"`
	Ref      IngredientRef `json:"-"`
	Label    string        `json:"label"`
	Drawn    float64       `json:"drawn_ml"`
	Consumed float64       `json:"consumed_units"`
	Before   float64       `json:"before"`
	After    float64       `json:"after"`
}

// Allocate draws required ml-equivalents from candidates in ascending
// priority order, exhausting each one before moving to the next. Consumed
// container units and resulting balances are rounded to RoundingPlaces.
//
// Candidates with nothing available are skipped, and a ref listed more than
// once only counts at its best priority. When the group cannot be
// satisfied within Epsilon an *InsufficientStockError is returned and no
// allocation is reported.
func Allocate(group string, required float64, candidates []Candidate) ([]Allocation, error) {
	if !(required >= 0) || math.IsInf(required, 0) {
		return nil, fmt.Errorf("%w: group %s requires %.5f", ErrInvalidQuantity, group, required)
	}
	if required <= Epsilon {
		return nil, nil
	}
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	if err := checkCandidates(group, ordered); err != nil {
		return nil, err
	}

	remaining := required
	allocations := make([]Allocation, 0, len(ordered))
	labels := make([]string, 0, len(ordered))
	seen := make(map[IngredientRef]bool, len(ordered))
	for _, c := range ordered {
		if !c.Ref.IsZero() {
			if seen[c.Ref] {
				continue
			}
			seen[c.Ref] = true
		}
		labels = append(labels, c.Label)
		if remaining <= Epsilon {
			break
		}
		available := c.Available()
		if available <= Epsilon {
			continue
		}
		take := remaining
		if available < take {
			take = available
		}
		consumed := Round(take / c.factor() / c.ContainerSize)
		after := Round(c.StockUnits - consumed)
		if after < NegativeFloor {
			return nil, &InsufficientStockError{Group: group, Items: []string{c.Label}, Required: required, Missing: remaining}
		}
		if after < 0 {
			after = 0
		}
		allocations = append(allocations, Allocation{
			Group:    group,
			Ref:      c.Ref,
			Label:    c.Label,
			Drawn:    Round(consumed * c.ContainerSize * c.factor()),
			Consumed: consumed,
			Before:   c.StockUnits,
			After:    after,
		})
		remaining -= take
	}
	if remaining > Epsilon {
		return nil, &InsufficientStockError{Group: group, Items: labels, Required: required, Missing: Round(remaining)}
	}
	return allocations, nil
}

func checkCandidates(group string, candidates []Candidate) error {
	var units []Unit
	seen := map[Unit]bool{}
	for _, c := range candidates {
		if c.ContainerSize <= 0 {
			return fmt.Errorf("%s: %w", c.Label, ErrInvalidContainerSize)
		}
		if !seen[c.Unit] {
			seen[c.Unit] = true
			units = append(units, c.Unit)
		}
	}
	if len(units) > 1 {
		return &UnitMismatchError{Group: group, Units: units}
	}
	return nil
}

// Round rounds v to RoundingPlaces decimals. Non-finite values are returned
// unchanged.
func Round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(RoundingPlaces).Float64()
	return f
}
