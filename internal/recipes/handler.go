package recipes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/httpx"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// Handler exposes recipe read/replace endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs recipe handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers recipe routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/recipe", h.handleGet)
	r.Put("/products/{id}/recipe", h.handleReplace)
}

type replaceRequest struct {
	Rules []RuleInput `json:"rules" validate:"required,dive"`
}

type ruleResponse struct {
	ID             int64                    `json:"id"`
	IngredientType inventory.IngredientKind `json:"ingredient_type"`
	ItemID         int64                    `json:"item_id,omitempty"`
	PrebatchID     int64                    `json:"prebatch_id,omitempty"`
	BrandID        int64                    `json:"marca_id,omitempty"`
	Group          string                   `json:"group"`
	Label          string                   `json:"label,omitempty"`
	ConsumptionML  float64                  `json:"consumo_ml"`
	Priority       int                      `json:"prioridad_item"`
	Variant        int                      `json:"recipe_variant"`
}

type recipeResponse struct {
	Product Product        `json:"product"`
	Rules   []ruleResponse `json:"rules"`
}

func newRecipeResponse(recipe Recipe) recipeResponse {
	out := recipeResponse{Product: recipe.Product, Rules: make([]ruleResponse, 0, len(recipe.Rules))}
	for _, r := range recipe.Rules {
		resp := ruleResponse{
			ID:             r.ID,
			IngredientType: r.Ingredient.Kind(),
			BrandID:        r.GroupID,
			Group:          r.GroupKey(),
			Label:          r.Label,
			ConsumptionML:  r.ConsumptionML,
			Priority:       r.Priority,
			Variant:        r.Variant,
		}
		if r.Ingredient.IsItem() {
			resp.ItemID = r.Ingredient.ID()
		} else {
			resp.PrebatchID = r.Ingredient.ID()
		}
		out.Rules = append(out.Rules, resp)
	}
	return out
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	recipe, err := h.service.Recipe(r.Context(), id)
	if err != nil {
		h.fail(w, "get recipe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRecipeResponse(recipe))
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var req replaceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	recipe, err := h.service.ReplaceRecipe(r.Context(), id, shared.ActorFromContext(r.Context()), req.Rules)
	if err != nil {
		h.fail(w, "replace recipe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRecipeResponse(recipe))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
