package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/barstock/internal/platform/cache"
	"github.com/odyssey-erp/barstock/internal/shared"
)

type auditRecorder struct {
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type metricsRecorder struct {
	outcomes []string
}

func (m *metricsRecorder) ObserveStockBatch(kind, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, kind+":"+outcome)
}

func seededStore() *inventorytest.Store {
	store := inventorytest.NewStore()
	store.AddItem(inventory.StockItem{ID: 1, BrandID: 7, BrandName: "Gin A", ContainerSize: 750, Unit: inventory.UnitMilliliter, StockUnits: 2, Active: true})
	store.AddItem(inventory.StockItem{ID: 2, BrandID: 7, BrandName: "Gin B", ContainerSize: 1000, Unit: inventory.UnitMilliliter, StockUnits: 1, Active: true})
	store.AddItem(inventory.StockItem{ID: 3, BrandID: 9, BrandName: "Tonic", ContainerSize: 200, Unit: inventory.UnitMilliliter, StockUnits: 10, LowStockThreshold: 12, Active: true})
	return store
}

func ginDemand(required float64) inventory.GroupDemand {
	return inventory.GroupDemand{
		Key:        "marca:7",
		Label:      "Gin",
		RequiredML: required,
		Candidates: []inventory.PrioritizedRef{
			{Ref: inventory.ItemRef(1), Priority: 1},
			{Ref: inventory.ItemRef(2), Priority: 2},
		},
	}
}

func tonicDemand(required float64) inventory.GroupDemand {
	return inventory.GroupDemand{
		Key:        "marca:9",
		RequiredML: required,
		Candidates: []inventory.PrioritizedRef{{Ref: inventory.ItemRef(3), Priority: 1}},
	}
}

func consume(demands ...inventory.GroupDemand) inventory.BatchFunc {
	return func(ctx context.Context, b *inventory.Batch) error {
		for _, d := range demands {
			if _, err := b.Consume(ctx, d); err != nil {
				return err
			}
		}
		return nil
	}
}

func sale() inventory.EventInput {
	return inventory.EventInput{Kind: inventory.EventSale, Description: "ventas"}
}

func TestConsumeCountsRepeatedCandidateOnce(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})
	twice := func(required float64) inventory.GroupDemand {
		return inventory.GroupDemand{
			Key:        "item:2",
			RequiredML: required,
			Candidates: []inventory.PrioritizedRef{
				{Ref: inventory.ItemRef(2), Priority: 1},
				{Ref: inventory.ItemRef(2), Priority: 2},
			},
		}
	}

	_, err := svc.RunBatch(context.Background(), sale(), consume(twice(1500)))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.InDelta(t, 1, store.Item(2).StockUnits, 1e-9)
	require.Empty(t, store.Events())

	res, err := svc.RunBatch(context.Background(), sale(), consume(twice(600)))
	require.NoError(t, err)
	require.Len(t, res.Movements, 1)
	require.InDelta(t, 1, res.Movements[0].Before, 1e-9)
	require.InDelta(t, 0.4, res.Movements[0].After, 1e-5)
	require.InDelta(t, 0.4, store.Item(2).StockUnits, 1e-5)
}

func TestRunBatchCrossesPriorities(t *testing.T) {
	store := seededStore()
	audit := &auditRecorder{}
	metrics := &metricsRecorder{}
	svc := inventory.NewService(store, audit, inventory.ServiceConfig{Metrics: metrics})

	res, err := svc.RunBatch(context.Background(), sale(), consume(ginDemand(1800)))
	require.NoError(t, err)

	require.InDelta(t, 0, store.Item(1).StockUnits, 1e-5)
	require.InDelta(t, 0.7, store.Item(2).StockUnits, 1e-5)
	require.NotZero(t, res.Event.ID)
	require.NotEmpty(t, res.Event.Reference)
	require.Len(t, res.Movements, 2)
	require.Len(t, res.Allocations, 2)
	for _, m := range res.Movements {
		require.Equal(t, res.Event.ID, m.EventID)
		require.InDelta(t, m.Before+m.Delta, m.After, 1e-5)
	}
	require.Len(t, store.Events(), 1)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stock:VENTA", audit.logs[0].Action)
	require.Equal(t, []string{"VENTA:committed"}, metrics.outcomes)
}

func TestRunBatchRollsBackWholeBatchOnInsufficientStock(t *testing.T) {
	store := seededStore()
	item := store.Item(2)
	item.Active = false
	store.AddItem(item)
	metrics := &metricsRecorder{}
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{Metrics: metrics})

	_, err := svc.RunBatch(context.Background(), sale(), consume(tonicDemand(100), ginDemand(1800)))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var insufficient *inventory.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, "Gin", insufficient.Group)

	require.InDelta(t, 2, store.Item(1).StockUnits, 1e-9)
	require.InDelta(t, 10, store.Item(3).StockUnits, 1e-9)
	require.Empty(t, store.Events())
	require.Empty(t, store.Movements())
	require.Equal(t, []string{"VENTA:insufficient_stock"}, metrics.outcomes)
}

func TestRunBatchRollsBackOnStoreFailure(t *testing.T) {
	store := seededStore()
	store.FailOn("InsertMovements", errors.New("connection reset"))
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})

	_, err := svc.RunBatch(context.Background(), sale(), consume(ginDemand(100)))
	require.Error(t, err)
	require.InDelta(t, 2, store.Item(1).StockUnits, 1e-9)
	require.Empty(t, store.Events())
}

func TestRunBatchChainsBalancesWithinBatch(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})

	res, err := svc.RunBatch(context.Background(), sale(), consume(ginDemand(15), ginDemand(15)))
	require.NoError(t, err)
	require.Len(t, res.Movements, 2)
	require.InDelta(t, 2, res.Movements[0].Before, 1e-9)
	require.InDelta(t, 1.98, res.Movements[0].After, 1e-9)
	require.InDelta(t, 1.98, res.Movements[1].Before, 1e-9)
	require.InDelta(t, 1.96, res.Movements[1].After, 1e-9)
	require.InDelta(t, 1.96, store.Item(1).StockUnits, 1e-9)
}

func TestRunBatchMissingItem(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})

	demand := inventory.GroupDemand{Key: "item:99", RequiredML: 10, Candidates: []inventory.PrioritizedRef{{Ref: inventory.ItemRef(99), Priority: 1}}}
	_, err := svc.RunBatch(context.Background(), sale(), consume(demand))
	require.ErrorIs(t, err, inventory.ErrEntityNotFound)
}

func TestRunBatchRejectsEmptyBatch(t *testing.T) {
	svc := inventory.NewService(seededStore(), nil, inventory.ServiceConfig{})
	_, err := svc.RunBatch(context.Background(), sale(), consume(ginDemand(0)))
	require.ErrorIs(t, err, inventory.ErrEmptyBatch)
}

func TestRunBatchIdempotencyKey(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})
	ctx := context.Background()
	in := sale()
	in.IdempotencyKey = "upload-42"

	_, err := svc.RunBatch(ctx, in, consume(ginDemand(5000)))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = svc.RunBatch(ctx, in, consume(ginDemand(100)))
	require.NoError(t, err)

	_, err = svc.RunBatch(ctx, in, consume(ginDemand(100)))
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, store.Events(), 1)
}

func TestReplayCreatesNewEventsAndLedgerSumsToBalance(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})
	ctx := context.Background()
	input := inventory.PurchaseInput{Description: "factura 1", Lines: []inventory.PurchaseLine{{ItemID: 3, Units: 6}}}

	first, err := svc.PostPurchases(ctx, input)
	require.NoError(t, err)
	second, err := svc.PostPurchases(ctx, input)
	require.NoError(t, err)
	require.NotEqual(t, first.Event.ID, second.Event.ID)
	require.NotEqual(t, first.Event.Reference, second.Event.Reference)

	_, err = svc.RunBatch(ctx, sale(), consume(tonicDemand(500)))
	require.NoError(t, err)

	var sum float64
	for _, m := range store.Movements() {
		if m.Ref == inventory.ItemRef(3) {
			sum += m.Delta
		}
	}
	require.InDelta(t, store.Item(3).StockUnits-10, sum, 1e-5)
	require.InDelta(t, 19.5, store.Item(3).StockUnits, 1e-5)
}

func TestPostAdjustments(t *testing.T) {
	store := seededStore()
	store.AddPrebatch(inventory.Prebatch{ID: 5, Name: "Negroni batch", InitialML: 2000, RemainingML: 1500, Active: true})
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	res, err := svc.PostAdjustments(ctx, inventory.AdjustmentInput{
		Description: "conteo semanal",
		Lines: []inventory.AdjustmentLine{
			{Ref: inventory.ItemRef(1), Counted: 1.5},
			{Ref: inventory.ItemRef(3), Counted: 10},
			{Ref: inventory.PrebatchRef(5), Counted: 1200},
		},
	})
	require.NoError(t, err)
	require.Equal(t, inventory.EventAdjustment, res.Event.Kind)
	require.Len(t, res.Movements, 3)
	require.InDelta(t, -0.5, res.Movements[0].Delta, 1e-9)
	require.InDelta(t, 0, res.Movements[1].Delta, 1e-9)
	require.InDelta(t, -300, res.Movements[2].Delta, 1e-9)
	require.InDelta(t, 1.5, store.Item(1).StockUnits, 1e-9)
	require.InDelta(t, 1200, store.Prebatch(5).RemainingML, 1e-9)

	_, err = svc.PostAdjustments(ctx, inventory.AdjustmentInput{Lines: []inventory.AdjustmentLine{{Ref: inventory.ItemRef(1), Counted: -1}}})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = svc.PostAdjustments(ctx, inventory.AdjustmentInput{Lines: []inventory.AdjustmentLine{{Counted: 1}}})
	require.ErrorIs(t, err, inventory.ErrInvalidReference)

	_, err = svc.PostAdjustments(ctx, inventory.AdjustmentInput{Lines: []inventory.AdjustmentLine{{Ref: inventory.PrebatchRef(77), Counted: 1}}})
	require.ErrorIs(t, err, inventory.ErrEntityNotFound)
}

func TestPostPurchasesValidates(t *testing.T) {
	svc := inventory.NewService(seededStore(), nil, inventory.ServiceConfig{})
	_, err := svc.PostPurchases(context.Background(), inventory.PurchaseInput{Lines: []inventory.PurchaseLine{{ItemID: 1, Units: 0}}})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = svc.PostPurchases(context.Background(), inventory.PurchaseInput{})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestLowStockCacheInvalidatedByBatch(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{Cache: cache.New(client, time.Minute)})
	ctx := context.Background()

	items, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(3), items[0].ID)
	require.Equal(t, "Tonic", items[0].Label)

	_, err = svc.PostPurchases(ctx, inventory.PurchaseInput{Lines: []inventory.PurchaseLine{{ItemID: 3, Units: 24}}})
	require.NoError(t, err)

	items, err = svc.LowStock(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestPrebatchesCarryStatus(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	store := inventorytest.NewStore()
	store.AddPrebatch(inventory.Prebatch{ID: 1, Name: "fresh", ProducedAt: now.Add(-24 * time.Hour), Active: true})
	store.AddPrebatch(inventory.Prebatch{ID: 2, Name: "old", ProducedAt: now.Add(-30 * 24 * time.Hour), Active: true})
	store.AddPrebatch(inventory.Prebatch{ID: 3, Name: "gone", ProducedAt: now, Active: false})
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{Clock: func() time.Time { return now }})

	views, err := svc.Prebatches(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, views, 2)
	status := map[string]inventory.PrebatchStatus{}
	for _, v := range views {
		status[v.Name] = v.Status
	}
	require.Equal(t, inventory.StatusFresh, status["fresh"])
	require.Equal(t, inventory.StatusExpired, status["old"])
}

func TestMovementsHistory(t *testing.T) {
	store := seededStore()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RunBatch(ctx, sale(), consume(tonicDemand(200)))
	require.NoError(t, err)
	_, err = svc.RunBatch(ctx, sale(), consume(tonicDemand(400)))
	require.NoError(t, err)

	history, err := svc.Movements(ctx, inventory.MovementFilter{Ref: inventory.ItemRef(3)})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.InDelta(t, -2, history[0].Delta, 1e-9)
	require.InDelta(t, -1, history[1].Delta, 1e-9)

	_, err = svc.Movements(ctx, inventory.MovementFilter{})
	require.ErrorIs(t, err, inventory.ErrInvalidReference)
}
