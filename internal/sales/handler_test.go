package sales

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/barstock/internal/shared"
)

func newSalesRouter(store *inventorytest.Store, maxUpload int64) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	NewHandler(logger, newTestService(store, newFakeRecipes()), maxUpload).MountRoutes(r)
	return r
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("description", "cierre viernes"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/sales/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUpload(t *testing.T) {
	store := newStore()
	router := newSalesRouter(store, 0)
	data := workbook(t, [][]any{{"Producto", "Cantidad"}, {"Gin Tonic", 2}, {"Agua", 1}})

	req := uploadRequest(t, "ventas.xlsx", data)
	req.Header.Set(shared.ActorHeader, "8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Batch struct {
			Event struct {
				Kind        string `json:"tipo"`
				Description string `json:"descripcion"`
				ActorID     int64  `json:"actor_id"`
			} `json:"event"`
		} `json:"batch"`
		Processed []LineResult  `json:"processed"`
		Skipped   []SkippedLine `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VENTA", body.Batch.Event.Kind)
	require.Equal(t, "cierre viernes", body.Batch.Event.Description)
	require.Equal(t, int64(8), body.Batch.Event.ActorID)
	require.Len(t, body.Processed, 1)
	require.Equal(t, 3, body.Skipped[0].Row)
	require.InDelta(t, 1.84, store.Item(1).StockUnits, 1e-9)
}

func TestHandleUploadRejectsOtherFiles(t *testing.T) {
	router := newSalesRouter(newStore(), 0)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "ventas.csv", []byte("producto,cantidad\n")))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/upload", strings.NewReader("x")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadTooLarge(t *testing.T) {
	store := newStore()
	router := newSalesRouter(store, 64)
	data := workbook(t, [][]any{{"Producto", "Cantidad"}, {"Gin Tonic", 2}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "ventas.xlsx", data))
	require.NotEqual(t, http.StatusCreated, rec.Code)
	require.Empty(t, store.Events())
}

func TestHandleJSONSales(t *testing.T) {
	store := newStore()
	router := newSalesRouter(store, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales",
		strings.NewReader(`{"lines":[{"producto":"Gin Tonic","cantidad":40}]}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Gin")
	require.InDelta(t, 2, store.Item(1).StockUnits, 1e-9)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales",
		strings.NewReader(`{"lines":[{"producto":"Gin Tonic","cantidad":-1}]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "lines[0].cantidad")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales",
		strings.NewReader(`{"lines":[{"producto":"Agua","cantidad":1}]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), `"batch"`)
}

func TestHandleJSONSalesOverflowingQuantity(t *testing.T) {
	store := newStore()
	router := newSalesRouter(store, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales",
		strings.NewReader(`{"lines":[{"producto":"Gin Tonic","cantidad":1e308}]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Empty(t, store.Events())

	data := workbook(t, [][]any{{"Producto", "Cantidad"}, {"Gin Tonic", "inf"}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "ventas.xlsx", data))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Empty(t, store.Events())
}
