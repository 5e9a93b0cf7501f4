package inventory_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/barstock/internal/shared"
)

func newInventoryRouter(store *inventorytest.Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{Logger: logger})
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	inventory.NewHandler(logger, svc).MountRoutes(r)
	return r
}

func TestHandlePurchases(t *testing.T) {
	store := seededStore()
	router := newInventoryRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(`{"description":"factura 9","lines":[{"item_id":3,"units":2}]}`))
	req.Header.Set(shared.ActorHeader, "4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body inventory.BatchView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, inventory.EventPurchase, body.Event.Kind)
	require.Equal(t, int64(4), body.Event.ActorID)
	require.Len(t, body.Movements, 1)
	require.Equal(t, inventory.KindItem, body.Movements[0].EntityType)
	require.InDelta(t, 12, body.Movements[0].After, 1e-9)
}

func TestHandleAdjustmentsValidation(t *testing.T) {
	router := newInventoryRouter(seededStore())

	cases := map[string]string{
		"both refs":    `{"lines":[{"item_id":1,"prebatch_id":2,"counted":1}]}`,
		"no ref":       `{"lines":[{"counted":1}]}`,
		"no count":     `{"lines":[{"item_id":1}]}`,
		"negative":     `{"lines":[{"item_id":1,"counted":-2}]}`,
		"no lines":     `{"lines":[]}`,
		"unknown json": `{"lines":[{"item_id":1,"counted":1}],"warehouse":3}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(payload)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleAdjustmentsUnknownItem(t *testing.T) {
	router := newInventoryRouter(seededStore())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(`{"lines":[{"item_id":404,"counted":1}]}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "item 404")
}

func TestHandleIdempotentPurchase(t *testing.T) {
	router := newInventoryRouter(seededStore())
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(`{"lines":[{"item_id":1,"units":1}]}`))
		req.Header.Set(shared.IdempotencyHeader, "factura-77")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusCreated, send())
	require.Equal(t, http.StatusConflict, send())
}

func TestHandleMovementsAndLowStock(t *testing.T) {
	store := seededStore()
	router := newInventoryRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(`{"lines":[{"item_id":3,"units":1}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/3/movements?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Movements []inventory.MovementView `json:"movements"`
		Limit     int                      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Movements, 1)
	require.Equal(t, 5, history.Limit)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/abc/movements", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/low-stock", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"label":"Tonic"`)
}
