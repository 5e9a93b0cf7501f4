package inventory

import (
	"context"
	"fmt"
	"sort"
)

// PrioritizedRef is one candidate of a substitution group; lower Priority is
// consumed first.
type PrioritizedRef struct {
	Ref      IngredientRef
	Priority int
}

// GroupDemand asks a batch to draw RequiredML from a substitution group.
type GroupDemand struct {
	Key        string
	Label      string
	RequiredML float64
	Candidates []PrioritizedRef
}

// BatchFunc mutates stock through the batch it receives.
type BatchFunc func(ctx context.Context, b *Batch) error

// Batch is the unit of work shared by every mutation of one request. Rows
// are locked the first time they are touched and their balances are kept in
// memory, so later demands in the same batch see earlier consumption.
type Batch struct {
	tx          TxRepository
	items       map[int64]*StockItem
	prebatches  map[int64]*Prebatch
	deltas      []Delta
	allocations []Allocation
}

func newBatch(tx TxRepository) *Batch {
	return &Batch{
		tx:         tx,
		items:      make(map[int64]*StockItem),
		prebatches: make(map[int64]*Prebatch),
	}
}

// Consume allocates demand against its active candidates.
func (b *Batch) Consume(ctx context.Context, demand GroupDemand) ([]Allocation, error) {
	if !(demand.RequiredML >= 0) {
		return nil, fmt.Errorf("%w: group %s requires %.5f ml", ErrInvalidQuantity, demand.Label, demand.RequiredML)
	}
	refs := make([]IngredientRef, 0, len(demand.Candidates))
	for _, c := range demand.Candidates {
		refs = append(refs, c.Ref)
	}
	if err := b.lock(ctx, refs); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(demand.Candidates))
	for _, pr := range demand.Candidates {
		switch {
		case pr.Ref.IsItem():
			item := b.items[pr.Ref.ID()]
			if !item.Active || item.StockUnits <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				Ref:           pr.Ref,
				Label:         item.Label(),
				Priority:      pr.Priority,
				StockUnits:    item.StockUnits,
				ContainerSize: item.ContainerSize,
				Unit:          item.Unit,
				Factor:        item.Factor(),
			})
		case pr.Ref.IsPrebatch():
			p := b.prebatches[pr.Ref.ID()]
			if !p.Active || p.RemainingML <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				Ref:           pr.Ref,
				Label:         p.Name,
				Priority:      pr.Priority,
				StockUnits:    p.RemainingML,
				ContainerSize: 1,
				Unit:          UnitMilliliter,
				Factor:        1,
			})
		}
	}

	label := demand.Label
	if label == "" {
		label = demand.Key
	}
	allocations, err := Allocate(label, demand.RequiredML, candidates)
	if err != nil {
		return nil, err
	}
	for _, a := range allocations {
		b.apply(a.Ref, a.Before, a.After, -a.Consumed)
	}
	b.allocations = append(b.allocations, allocations...)
	return allocations, nil
}

// SetBalance records a physical count for ref.
func (b *Batch) SetBalance(ctx context.Context, ref IngredientRef, counted float64) (Delta, error) {
	if counted < 0 {
		return Delta{}, fmt.Errorf("%w: counted %.5f for %s", ErrInvalidQuantity, counted, ref)
	}
	before, err := b.balance(ctx, ref)
	if err != nil {
		return Delta{}, err
	}
	after := Round(counted)
	return b.apply(ref, before, after, Round(after-before)), nil
}

// Receive adds purchased container units to a stock item.
func (b *Batch) Receive(ctx context.Context, itemID int64, units float64) (Delta, error) {
	if units <= 0 {
		return Delta{}, fmt.Errorf("%w: received %.5f units for item %d", ErrInvalidQuantity, units, itemID)
	}
	ref := ItemRef(itemID)
	before, err := b.balance(ctx, ref)
	if err != nil {
		return Delta{}, err
	}
	change := Round(units)
	return b.apply(ref, before, Round(before+change), change), nil
}

// CreatePrebatch inserts p and records its initial volume as a movement from zero.
func (b *Batch) CreatePrebatch(ctx context.Context, p Prebatch) (Prebatch, error) {
	if p.InitialML <= 0 {
		return Prebatch{}, fmt.Errorf("%w: prebatch output %.5f ml", ErrInvalidQuantity, p.InitialML)
	}
	p.InitialML = Round(p.InitialML)
	p.RemainingML = 0
	p.Active = true
	id, err := b.tx.InsertPrebatch(ctx, p)
	if err != nil {
		return Prebatch{}, fmt.Errorf("insert prebatch: %w", err)
	}
	p.ID = id
	b.prebatches[id] = &p
	b.apply(PrebatchRef(id), 0, p.InitialML, p.InitialML)
	return *b.prebatches[id], nil
}

// Deltas returns the pending changes in application order.
func (b *Batch) Deltas() []Delta {
	out := make([]Delta, len(b.deltas))
	copy(out, b.deltas)
	return out
}

// Allocations returns every allocation made by Consume.
func (b *Batch) Allocations() []Allocation {
	out := make([]Allocation, len(b.allocations))
	copy(out, b.allocations)
	return out
}

func (b *Batch) apply(ref IngredientRef, before, after, change float64) Delta {
	switch {
	case ref.IsItem():
		b.items[ref.ID()].StockUnits = after
	case ref.IsPrebatch():
		b.prebatches[ref.ID()].RemainingML = after
	}
	d := Delta{Ref: ref, Before: before, After: after, Change: change}
	b.deltas = append(b.deltas, d)
	return d
}

func (b *Batch) balance(ctx context.Context, ref IngredientRef) (float64, error) {
	if err := b.lock(ctx, []IngredientRef{ref}); err != nil {
		return 0, err
	}
	if ref.IsItem() {
		return b.items[ref.ID()].StockUnits, nil
	}
	return b.prebatches[ref.ID()].RemainingML, nil
}

// lock takes row locks on refs not yet held, in ascending id order per table
// so concurrent batches acquire locks in the same sequence.
func (b *Batch) lock(ctx context.Context, refs []IngredientRef) error {
	var itemIDs, prebatchIDs []int64
	for _, ref := range refs {
		switch {
		case ref.IsItem():
			if _, ok := b.items[ref.ID()]; !ok {
				itemIDs = appendUnique(itemIDs, ref.ID())
			}
		case ref.IsPrebatch():
			if _, ok := b.prebatches[ref.ID()]; !ok {
				prebatchIDs = appendUnique(prebatchIDs, ref.ID())
			}
		default:
			return ErrInvalidReference
		}
	}
	if len(itemIDs) > 0 {
		sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })
		items, err := b.tx.LockItems(ctx, itemIDs)
		if err != nil {
			return fmt.Errorf("lock items: %w", err)
		}
		for i := range items {
			item := items[i]
			b.items[item.ID] = &item
		}
		for _, id := range itemIDs {
			if _, ok := b.items[id]; !ok {
				return &NotFoundError{Entity: "item", Key: formatID(id)}
			}
		}
	}
	if len(prebatchIDs) > 0 {
		sort.Slice(prebatchIDs, func(i, j int) bool { return prebatchIDs[i] < prebatchIDs[j] })
		prebatches, err := b.tx.LockPrebatches(ctx, prebatchIDs)
		if err != nil {
			return fmt.Errorf("lock prebatches: %w", err)
		}
		for i := range prebatches {
			p := prebatches[i]
			b.prebatches[p.ID] = &p
		}
		for _, id := range prebatchIDs {
			if _, ok := b.prebatches[id]; !ok {
				return &NotFoundError{Entity: "prebatch", Key: formatID(id)}
			}
		}
	}
	return nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
