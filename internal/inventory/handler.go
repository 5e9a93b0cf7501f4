package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/barstock/internal/platform/httpx"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// Handler wires HTTP endpoints for stock adjustments, purchases and reads.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustments)
	r.Post("/purchases", h.handlePurchases)
	r.Get("/items/low-stock", h.handleLowStock)
	r.Get("/items/{id}/movements", h.handleMovements(KindItem))
	r.Get("/prebatches", h.handlePrebatches)
	r.Get("/prebatches/{id}/movements", h.handleMovements(KindPrebatch))
}

type adjustmentLineRequest struct {
	ItemID     int64    `json:"item_id" validate:"required_without=PrebatchID,excluded_with=PrebatchID"`
	PrebatchID int64    `json:"prebatch_id"`
	Counted    *float64 `json:"counted" validate:"required,gte=0"`
}

type adjustmentRequest struct {
	Description string                  `json:"description" validate:"max=500"`
	Lines       []adjustmentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type purchaseLineRequest struct {
	ItemID int64   `json:"item_id" validate:"required,gt=0"`
	Units  float64 `json:"units" validate:"gt=0"`
}

type purchaseRequest struct {
	Description string                `json:"description" validate:"max=500"`
	Lines       []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type prebatchResponse struct {
	ID          int64          `json:"id"`
	Name        string         `json:"nombre"`
	ProducedAt  time.Time      `json:"fecha_produccion"`
	ExpiresAt   *time.Time     `json:"fecha_vencimiento,omitempty"`
	InitialML   float64        `json:"cantidad_inicial_ml"`
	RemainingML float64        `json:"cantidad_actual_ml"`
	Lot         string         `json:"identificador_lote,omitempty"`
	Category    string         `json:"categoria,omitempty"`
	Active      bool           `json:"is_active"`
	Status      PrebatchStatus `json:"estado"`
}

func (h *Handler) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := AdjustmentInput{
		Description:    req.Description,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get(shared.IdempotencyHeader),
	}
	for _, line := range req.Lines {
		ref := ItemRef(line.ItemID)
		if line.PrebatchID != 0 {
			ref = PrebatchRef(line.PrebatchID)
		}
		input.Lines = append(input.Lines, AdjustmentLine{Ref: ref, Counted: *line.Counted})
	}
	res, err := h.service.PostAdjustments(r.Context(), input)
	if err != nil {
		h.fail(w, "post adjustments", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewBatchView(res))
}

func (h *Handler) handlePurchases(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := PurchaseInput{
		Description:    req.Description,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get(shared.IdempotencyHeader),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PurchaseLine{ItemID: line.ItemID, Units: line.Units})
	}
	res, err := h.service.PostPurchases(r.Context(), input)
	if err != nil {
		h.fail(w, "post purchases", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewBatchView(res))
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, "list low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handlePrebatches(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	views, err := h.service.Prebatches(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, "list prebatches", err)
		return
	}
	out := make([]prebatchResponse, 0, len(views))
	for _, v := range views {
		out = append(out, prebatchResponse{
			ID:          v.ID,
			Name:        v.Name,
			ProducedAt:  v.ProducedAt,
			ExpiresAt:   v.ExpiresAt,
			InitialML:   v.InitialML,
			RemainingML: v.RemainingML,
			Lot:         v.Lot,
			Category:    v.Category,
			Active:      v.Active,
			Status:      v.Status,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"prebatches": out})
}

func (h *Handler) handleMovements(kind IngredientKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, ErrInvalidReference)
			return
		}
		ref := ItemRef(id)
		if kind == KindPrebatch {
			ref = PrebatchRef(id)
		}
		page := shared.PageFromQuery(r.URL.Query())
		movements, err := h.service.Movements(r.Context(), MovementFilter{Ref: ref, Limit: page.Limit, Offset: page.Offset})
		if err != nil {
			h.fail(w, "list movements", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"movements": NewMovementViews(movements),
			"limit":     page.Limit,
			"offset":    page.Offset,
		})
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		h.logger.Warn(op+" rejected", slog.String("group", insufficient.Group), slog.Any("error", err))
	case !httpx.IsClientError(err):
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
