package inventory

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/barstock/internal/platform/httpx"
)

var (
	// ErrInsufficientStock is returned when a group cannot cover its requirement.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", httpx.ErrConflict)
	// ErrUnitMismatch flags a substitution group mixing ml and g items.
	ErrUnitMismatch = fmt.Errorf("inventory: unit mismatch: %w", httpx.ErrUnprocessable)
	// ErrInvalidContainerSize flags an item whose container size is not positive.
	ErrInvalidContainerSize = fmt.Errorf("inventory: container size must be > 0: %w", httpx.ErrUnprocessable)
	// ErrEntityNotFound is returned when a referenced row is missing.
	ErrEntityNotFound = fmt.Errorf("inventory: entity not found: %w", httpx.ErrNotFound)
	// ErrInvalidQuantity indicates a quantity outside the accepted range.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", httpx.ErrValidation)
	// ErrInvalidReference indicates an ingredient ref that points at nothing.
	ErrInvalidReference = fmt.Errorf("inventory: invalid ingredient reference: %w", httpx.ErrValidation)
	// ErrLedgerInvariant means a movement's before + delta does not equal after.
	ErrLedgerInvariant = fmt.Errorf("inventory: ledger invariant violated")
)

// InsufficientStockError names the group and items that ran short.
type InsufficientStockError struct {
	Group    string
	Items    []string
	Required float64
	Missing  float64
}

func (e *InsufficientStockError) Error() string {
	items := "no active stock"
	if len(e.Items) > 0 {
		items = strings.Join(e.Items, ", ")
	}
	return fmt.Sprintf("inventory: insufficient stock for %s (%s): required %.3f, missing %.3f", e.Group, items, e.Required, e.Missing)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// UnitMismatchError lists the units found in one group.
type UnitMismatchError struct {
	Group string
	Units []Unit
}

func (e *UnitMismatchError) Error() string {
	units := make([]string, len(e.Units))
	for i, u := range e.Units {
		units[i] = string(u)
	}
	return fmt.Sprintf("inventory: group %s mixes units %s", e.Group, strings.Join(units, "/"))
}

func (e *UnitMismatchError) Unwrap() error { return ErrUnitMismatch }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("inventory: %s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrEntityNotFound }
