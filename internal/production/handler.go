package production

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
	"github.com/odyssey-erp/barstock/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes production registration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/production", h.handleRegister)
}

type ingredientRequest struct {
	ItemID int64   `json:"item_id" validate:"required,gt=0"`
	ML     float64 `json:"ml" validate:"gt=0"`
}

type registerRequest struct {
	Name        string              `json:"nombre" validate:"required,max=200"`
	ProducedAt  string              `json:"fecha_produccion" validate:"omitempty,datetime=2006-01-02"`
	ExpiresAt   string              `json:"fecha_vencimiento" validate:"omitempty,datetime=2006-01-02"`
	OutputML    float64             `json:"cantidad_inicial_ml" validate:"gt=0"`
	Lot         string              `json:"identificador_lote" validate:"max=100"`
	Category    string              `json:"categoria" validate:"max=100"`
	Ingredients []ingredientRequest `json:"ingredientes" validate:"required,min=1,dive"`
}

type registerResponse struct {
	Prebatch prebatchResponse    `json:"prebatch"`
	Batch    inventory.BatchView `json:"batch"`
}

type prebatchResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"nombre"`
	ProducedAt  time.Time  `json:"fecha_produccion"`
	ExpiresAt   *time.Time `json:"fecha_vencimiento,omitempty"`
	InitialML   float64    `json:"cantidad_inicial_ml"`
	RemainingML float64    `json:"cantidad_actual_ml"`
	Lot         string     `json:"identificador_lote,omitempty"`
	Category    string     `json:"categoria,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := Input{
		Name:           req.Name,
		OutputML:       req.OutputML,
		Lot:            req.Lot,
		Category:       req.Category,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get(shared.IdempotencyHeader),
	}
	if req.ProducedAt != "" {
		input.ProducedAt, _ = time.Parse(dateLayout, req.ProducedAt)
	}
	if req.ExpiresAt != "" {
		expires, _ := time.Parse(dateLayout, req.ExpiresAt)
		input.ExpiresAt = &expires
	}
	for _, ing := range req.Ingredients {
		input.Ingredients = append(input.Ingredients, Ingredient{ItemID: ing.ItemID, ML: ing.ML})
	}

	res, err := h.service.Register(r.Context(), input)
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			h.logger.Warn("production rejected", slog.String("group", insufficient.Group), slog.Any("error", err))
		case !httpx.IsClientError(err):
			h.logger.Error("production failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	p := res.Prebatch
	httpx.JSON(w, http.StatusCreated, registerResponse{
		Prebatch: prebatchResponse{
			ID:          p.ID,
			Name:        p.Name,
			ProducedAt:  p.ProducedAt,
			ExpiresAt:   p.ExpiresAt,
			InitialML:   p.InitialML,
			RemainingML: p.RemainingML,
			Lot:         p.Lot,
			Category:    p.Category,
		},
		Batch: inventory.NewBatchView(res.Batch),
	})
}
