package inventory

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func bottle(id int64, priority int, units, size float64) Candidate {
	return Candidate{
		Ref:           ItemRef(id),
		Label:         "item",
		Priority:      priority,
		StockUnits:    units,
		ContainerSize: size,
		Unit:          UnitMilliliter,
	}
}

func TestAllocateDrainsHigherPriorityFirst(t *testing.T) {
	a := bottle(1, 1, 2, 750)
	b := bottle(2, 2, 1, 1000)

	allocs, err := Allocate("marca:7", 1800, []Candidate{b, a})
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	require.Equal(t, ItemRef(1), allocs[0].Ref)
	require.InDelta(t, 1500, allocs[0].Drawn, 1e-5)
	require.InDelta(t, 2, allocs[0].Consumed, 1e-5)
	require.InDelta(t, 0, allocs[0].After, 1e-5)

	require.Equal(t, ItemRef(2), allocs[1].Ref)
	require.InDelta(t, 300, allocs[1].Drawn, 1e-5)
	require.InDelta(t, 0.3, allocs[1].Consumed, 1e-5)
	require.InDelta(t, 0.7, allocs[1].After, 1e-5)
}

func TestAllocateConservesQuantities(t *testing.T) {
	candidates := []Candidate{bottle(1, 1, 1.5, 700), bottle(2, 2, 3, 1000), bottle(3, 3, 0.25, 750)}
	allocs, err := Allocate("g", 2345.678, candidates)
	require.NoError(t, err)

	var drawn float64
	for i, a := range allocs {
		require.InDelta(t, a.Before-a.Consumed, a.After, 1e-5)
		require.InDelta(t, a.Drawn, a.Consumed*candidates[i].ContainerSize, 1e-5)
		drawn += a.Drawn
	}
	// each container count is rounded to RoundingPlaces, so the total can
	// move by half a unit in the last place times the container size.
	require.InDelta(t, 2345.678, drawn, 0.5e-5*(700+1000)+1e-9)
}

func TestAllocateCountsRepeatedRefOnce(t *testing.T) {
	_, err := Allocate("item:1", 1500, []Candidate{bottle(1, 1, 1, 1000), bottle(1, 2, 1, 1000)})
	require.ErrorIs(t, err, ErrInsufficientStock)

	allocs, err := Allocate("item:1", 800, []Candidate{bottle(1, 2, 1, 1000), bottle(1, 1, 1, 1000)})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.InDelta(t, 1, allocs[0].Before, 1e-9)
	require.InDelta(t, 0.2, allocs[0].After, 1e-5)
}

func TestAllocateRejectsNonFiniteRequirement(t *testing.T) {
	for _, required := range []float64{math.Inf(1), math.NaN()} {
		_, err := Allocate("g", required, []Candidate{bottle(1, 1, 1, 1000)})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.True(t, math.IsInf(Round(math.Inf(1)), 1))
}

func TestAllocateNeverSkipsAvailableHigherPriority(t *testing.T) {
	allocs, err := Allocate("g", 100, []Candidate{bottle(2, 5, 10, 1000), bottle(1, 1, 1, 700)})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, ItemRef(1), allocs[0].Ref)
}

func TestAllocateInsufficient(t *testing.T) {
	_, err := Allocate("marca:7", 1800, []Candidate{bottle(1, 1, 2, 750)})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, "marca:7", insufficient.Group)
	require.InDelta(t, 300, insufficient.Missing, 1e-5)
}

func TestAllocateWithoutCandidates(t *testing.T) {
	_, err := Allocate("marca:7", 10, nil)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAllocateWithinEpsilonSucceeds(t *testing.T) {
	allocs, err := Allocate("g", 1000.0005, []Candidate{bottle(1, 1, 1, 1000)})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.InDelta(t, 0, allocs[0].After, 1e-5)
}

func TestAllocateTrivialRequirement(t *testing.T) {
	allocs, err := Allocate("g", 0, []Candidate{bottle(1, 1, 1, 1000)})
	require.NoError(t, err)
	require.Empty(t, allocs)

	_, err = Allocate("g", -1, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAllocateUnitMismatch(t *testing.T) {
	solid := bottle(2, 2, 1, 500)
	solid.Unit = UnitGram
	_, err := Allocate("marca:3", 100, []Candidate{bottle(1, 1, 1, 700), solid})
	require.ErrorIs(t, err, ErrUnitMismatch)

	var mismatch *UnitMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, []Unit{UnitMilliliter, UnitGram}, mismatch.Units)
}

func TestAllocateRejectsInvalidContainerSize(t *testing.T) {
	_, err := Allocate("g", 100, []Candidate{bottle(1, 1, 1, 0)})
	require.ErrorIs(t, err, ErrInvalidContainerSize)
}

func TestAllocateGramsDefaultToMillilitreEquivalence(t *testing.T) {
	sugar := bottle(1, 1, 1, 1000)
	sugar.Unit = UnitGram
	allocs, err := Allocate("g", 250, []Candidate{sugar})
	require.NoError(t, err)
	require.InDelta(t, 0.25, allocs[0].Consumed, 1e-5)
}

func TestAllocateAppliesConversionFactor(t *testing.T) {
	syrup := bottle(1, 1, 1, 500)
	syrup.Unit = UnitGram
	syrup.Factor = 2
	allocs, err := Allocate("g", 300, []Candidate{syrup})
	require.NoError(t, err)
	require.InDelta(t, 0.3, allocs[0].Consumed, 1e-5)
	require.InDelta(t, 0.7, allocs[0].After, 1e-5)
}

func TestAllocateRoundingStable(t *testing.T) {
	stock := 2.0
	for i := 0; i < 37; i++ {
		allocs, err := Allocate("g", 15, []Candidate{bottle(1, 1, stock, 750)})
		require.NoError(t, err)
		stock = allocs[0].After
	}
	require.InDelta(t, 1.26, stock, Epsilon)

	allocs, err := Allocate("g", 37*15, []Candidate{bottle(1, 1, 2, 750)})
	require.NoError(t, err)
	require.InDelta(t, stock, allocs[0].After, Epsilon)
}

func TestRound(t *testing.T) {
	require.Equal(t, 0.33333, Round(1.0/3))
	require.Equal(t, 1.26, Round(2-0.74))
	require.Equal(t, -0.00001, Round(-0.000012))
}
