package sales

import (
	"errors"
	"log"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// WorkbookContentType is the media type of .xlsx uploads.
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const defaultMaxUpload = 10 << 20

func init() {
	ensureMimeType(".xlsx", WorkbookContentType)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("sales: failed to register MIME type for %s: %v", ext, err)
	}
}

// Handler exposes sales ingestion endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	maxUpload int64
}

// NewHandler constructs the sales handler; maxUpload caps workbook size in bytes.
func NewHandler(logger *slog.Logger, service *Service, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), maxUpload: maxUpload}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleJSON)
	r.Post("/sales/upload", h.handleUpload)
}

type salesRequest struct {
	Description string `json:"description" validate:"max=500"`
	Lines       []Line `json:"lines" validate:"required,min=1,dive"`
}

type salesResponse struct {
	Batch     *inventory.BatchView `json:"batch,omitempty"`
	Processed []LineResult         `json:"processed"`
	Skipped   []SkippedLine        `json:"skipped"`
}

func newSalesResponse(res Result) salesResponse {
	out := salesResponse{Processed: res.Processed, Skipped: res.Skipped}
	if out.Processed == nil {
		out.Processed = []LineResult{}
	}
	if out.Skipped == nil {
		out.Skipped = []SkippedLine{}
	}
	if res.Batch != nil {
		view := inventory.NewBatchView(*res.Batch)
		out.Batch = &view
	}
	return out
}

func (h *Handler) handleJSON(w http.ResponseWriter, r *http.Request) {
	var req salesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	h.process(w, r, Input{Description: req.Description, Lines: req.Lines})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "workbook exceeds upload limit")
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form with a file field required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer file.Close()

	if !isWorkbook(header.Filename, header.Header.Get("Content-Type")) {
		httpx.Problem(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "only .xlsx workbooks are accepted")
		return
	}
	lines, err := ParseWorkbook(file)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	description := strings.TrimSpace(r.FormValue("description"))
	if description == "" {
		description = "ventas: " + filepath.Base(header.Filename)
	}
	h.process(w, r, Input{Description: description, Lines: lines})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, input Input) {
	input.ActorID = shared.ActorFromContext(r.Context())
	input.IdempotencyKey = r.Header.Get(shared.IdempotencyHeader)
	res, err := h.service.Process(r.Context(), input)
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			h.logger.Warn("sales batch rejected", slog.String("group", insufficient.Group), slog.Any("error", err))
		case !httpx.IsClientError(err):
			h.logger.Error("sales batch failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Batch == nil {
		status = http.StatusOK
	}
	httpx.JSON(w, status, newSalesResponse(res))
}

func isWorkbook(filename, contentType string) bool {
	if strings.HasPrefix(contentType, WorkbookContentType) {
		return true
	}
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))) == WorkbookContentType
}
