package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ledgerTolerance bounds |before + delta - after| for an accepted movement.
const ledgerTolerance = 1e-5

// Delta is a pending balance change for one entity.
type Delta struct {
	Ref    IngredientRef
	Before float64
	After  float64
	Change float64
}

// EventInput describes the event a batch is recorded under.
type EventInput struct {
	Kind           EventKind
	Description    string
	ActorID        int64
	Reference      string
	IdempotencyKey string
}

// LedgerWriter turns a batch's deltas into one event, its movements and the
// final balance of every touched entity. It must run inside the batch
// transaction.
type LedgerWriter struct {
	now func() time.Time
}

// NewLedgerWriter builds a writer stamping rows with clock; nil means UTC now.
func NewLedgerWriter(clock func() time.Time) LedgerWriter {
	return LedgerWriter{now: clock}
}

// Write appends the event and movements and applies the balances.
func (w LedgerWriter) Write(ctx context.Context, tx TxRepository, in EventInput, deltas []Delta) (Event, []Movement, error) {
	if !in.Kind.Valid() {
		return Event{}, nil, fmt.Errorf("inventory: unknown event kind %q", in.Kind)
	}
	for _, d := range deltas {
		if d.Ref.IsZero() {
			return Event{}, nil, ErrInvalidReference
		}
		if math.Abs(d.Before+d.Change-d.After) > ledgerTolerance {
			return Event{}, nil, fmt.Errorf("%w: %s %.5f + %.5f != %.5f", ErrLedgerInvariant, d.Ref, d.Before, d.Change, d.After)
		}
	}

	now := w.clock()
	event := Event{
		Reference:   in.Reference,
		Kind:        in.Kind,
		Description: in.Description,
		ActorID:     in.ActorID,
		CreatedAt:   now,
	}
	if event.Reference == "" {
		event.Reference = uuid.NewString()
	}
	id, err := tx.InsertEvent(ctx, event)
	if err != nil {
		return Event{}, nil, fmt.Errorf("insert event: %w", err)
	}
	event.ID = id

	movements := make([]Movement, 0, len(deltas))
	for _, d := range deltas {
		movements = append(movements, Movement{
			EventID:   id,
			Ref:       d.Ref,
			Before:    d.Before,
			After:     d.After,
			Delta:     d.Change,
			CreatedAt: now,
		})
	}
	if len(movements) > 0 {
		if err := tx.InsertMovements(ctx, id, movements); err != nil {
			return Event{}, nil, fmt.Errorf("insert movements: %w", err)
		}
	}

	for _, d := range finalBalances(deltas) {
		switch {
		case d.Ref.IsItem():
			err = tx.UpdateItemStock(ctx, d.Ref.ID(), d.After)
		case d.Ref.IsPrebatch():
			err = tx.UpdatePrebatchStock(ctx, d.Ref.ID(), d.After)
		}
		if err != nil {
			return Event{}, nil, fmt.Errorf("update %s: %w", d.Ref, err)
		}
	}
	return event, movements, nil
}

func (w LedgerWriter) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now().UTC()
}

// finalBalances keeps the last delta per entity, in first-touch order.
func finalBalances(deltas []Delta) []Delta {
	index := make(map[IngredientRef]int, len(deltas))
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.Ref]; ok {
			out[i] = d
			continue
		}
		index[d.Ref] = len(out)
		out = append(out, d)
	}
	return out
}
