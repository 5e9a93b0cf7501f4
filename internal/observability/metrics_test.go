package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/items/{id}/movements")

	req := httptest.NewRequest(http.MethodGet, "/api/items/3/movements", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `barstock_http_requests_total{code="418",route="/api/items/{id}/movements"} 1`)
	require.Contains(t, body, `barstock_http_request_duration_seconds_bucket{route="/api/items/{id}/movements"`)
}

func TestObserveStockBatch(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveStockBatch("VENTA", "committed", 20*time.Millisecond)
	metrics.ObserveStockBatch("VENTA", "committed", 10*time.Millisecond)
	metrics.ObserveStockBatch("VENTA", "insufficient_stock", time.Millisecond)

	body := scrape(t, metrics)
	require.Contains(t, body, `barstock_stock_batches_total{kind="VENTA",outcome="committed"} 2`)
	require.Contains(t, body, `barstock_stock_batches_total{kind="VENTA",outcome="insufficient_stock"} 1`)
	require.Contains(t, body, `barstock_stock_batch_duration_seconds_count{kind="VENTA"} 3`)
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveStockBatch("AJUSTE", "committed", time.Second)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, metrics.Middleware(next))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.False(t, strings.Contains(rr.Body.String(), "barstock_"))
}
