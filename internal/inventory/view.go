package inventory

import "time"

// EventView is the JSON shape of an Event.
type EventView struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"referencia"`
	Kind        EventKind `json:"tipo"`
	Description string    `json:"descripcion,omitempty"`
	ActorID     int64     `json:"actor_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MovementView is the JSON shape of a Movement.
type MovementView struct {
	ID         int64          `json:"id,omitempty"`
	EventID    int64          `json:"evento_id"`
	EntityType IngredientKind `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Before     float64        `json:"stock_anterior"`
	After      float64        `json:"stock_nuevo"`
	Delta      float64        `json:"cantidad_unidades_movidas"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BatchView is the JSON shape of a committed batch.
type BatchView struct {
	Event       EventView      `json:"event"`
	Movements   []MovementView `json:"movements"`
	Allocations []Allocation   `json:"allocations,omitempty"`
}

// NewEventView converts e.
func NewEventView(e Event) EventView {
	return EventView{
		ID:          e.ID,
		Reference:   e.Reference,
		Kind:        e.Kind,
		Description: e.Description,
		ActorID:     e.ActorID,
		CreatedAt:   e.CreatedAt,
	}
}

// NewMovementViews converts movements.
func NewMovementViews(movements []Movement) []MovementView {
	out := make([]MovementView, 0, len(movements))
	for _, m := range movements {
		out = append(out, MovementView{
			ID:         m.ID,
			EventID:    m.EventID,
			EntityType: m.Ref.Kind(),
			EntityID:   m.Ref.ID(),
			Before:     m.Before,
			After:      m.After,
			Delta:      m.Delta,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out
}

// NewBatchView converts a batch result.
func NewBatchView(res BatchResult) BatchView {
	return BatchView{
		Event:       NewEventView(res.Event),
		Movements:   NewMovementViews(res.Movements),
		Allocations: res.Allocations,
	}
}
