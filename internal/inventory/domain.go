package inventory

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the base unit a stock item is measured in.
type Unit string

const (
	// UnitMilliliter measures liquids.
	UnitMilliliter Unit = "ml"
	// UnitGram measures solids.
	UnitGram Unit = "g"
)

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	return u == UnitMilliliter || u == UnitGram
}

// EventKind classifies a stock event (one batch operation).
type EventKind string

const (
	// EventPurchase records received goods.
	EventPurchase EventKind = "COMPRA"
	// EventAdjustment records a physical count.
	EventAdjustment EventKind = "AJUSTE"
	// EventSale records consumption driven by sales.
	EventSale EventKind = "VENTA"
	// EventProduction records consumption for a prebatch run.
	EventProduction EventKind = "PRODUCCION"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventPurchase, EventAdjustment, EventSale, EventProduction:
		return true
	}
	return false
}

// IngredientKind discriminates an IngredientRef.
type IngredientKind string

const (
	// KindItem references a StockItem.
	KindItem IngredientKind = "item"
	// KindPrebatch references a Prebatch.
	KindPrebatch IngredientKind = "prebatch"
)

// IngredientRef points at exactly one stock item or one prebatch. The zero
// value references nothing; build refs with ItemRef or PrebatchRef.
type IngredientRef struct {
	kind IngredientKind
	id   int64
}

// ItemRef references a stock item.
func ItemRef(id int64) IngredientRef {
	return IngredientRef{kind: KindItem, id: id}
}

// PrebatchRef references a prebatch.
func PrebatchRef(id int64) IngredientRef {
	return IngredientRef{kind: KindPrebatch, id: id}
}

// Kind returns the discriminator.
func (r IngredientRef) Kind() IngredientKind { return r.kind }

// ID returns the referenced row id.
func (r IngredientRef) ID() int64 { return r.id }

// IsItem reports whether r references a stock item.
func (r IngredientRef) IsItem() bool { return r.kind == KindItem && r.id > 0 }

// IsPrebatch reports whether r references a prebatch.
func (r IngredientRef) IsPrebatch() bool { return r.kind == KindPrebatch && r.id > 0 }

// IsZero reports whether r references nothing usable.
func (r IngredientRef) IsZero() bool { return !r.IsItem() && !r.IsPrebatch() }

func (r IngredientRef) String() string {
	if r.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", r.kind, r.id)
}

// StockItem is a purchasable container of a brand/ingredient.
type StockItem struct {
	ID                int64
	BrandID           int64
	BrandName         string
	Variant           string
	ContainerSize     float64
	Unit              Unit
	ConversionFactor  float64
	StockUnits        float64
	LowStockThreshold float64
	Active            bool
}

// Factor returns ml-equivalents per base unit; unset means 1 (1 g counts as 1 ml).
func (i StockItem) Factor() float64 {
	if i.ConversionFactor <= 0 {
		return 1
	}
	return i.ConversionFactor
}

// Label names the item for operators.
func (i StockItem) Label() string {
	name := strings.TrimSpace(i.BrandName)
	if name == "" {
		name = fmt.Sprintf("item %d", i.ID)
	}
	if v := strings.TrimSpace(i.Variant); v != "" {
		name += " " + v
	}
	return name
}

// Prebatch is a produced lot of a mixed ingredient, tracked in ml.
type Prebatch struct {
	ID          int64
	Name        string
	ProducedAt  time.Time
	ExpiresAt   *time.Time
	InitialML   float64
	RemainingML float64
	Lot         string
	Category    string
	Active      bool
}

// Event groups one batch operation.
type Event struct {
	ID          int64
	Reference   string
	Kind        EventKind
	Description string
	ActorID     int64
	CreatedAt   time.Time
}

// Movement is an immutable ledger row recording one entity's change.
type Movement struct {
	ID        int64
	EventID   int64
	Ref       IngredientRef
	Before    float64
	After     float64
	Delta     float64
	CreatedAt time.Time
}

// MovementFilter scopes movement history queries.
type MovementFilter struct {
	Ref    IngredientRef
	Limit  int
	Offset int
}
