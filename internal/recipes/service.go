package recipes

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/barstock/internal/shared"
)

const catalogCacheKey = "recipes:catalog"

// RepositoryPort abstracts recipe persistence.
type RepositoryPort interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListRules(ctx context.Context, productID int64) ([]Rule, error)
	ReplaceRules(ctx context.Context, productID int64, rules []Rule) error
}

// CachePort caches the product catalog.
type CachePort interface {
	Key(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache  CachePort
	Logger *slog.Logger
}

// Service reads and replaces recipes and resolves sold products.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  CachePort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cfg.Cache, logger: logger}
}

// Catalog returns the active products indexed by normalized name.
func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	var products []Product
	if s.cache == nil {
		list, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return NewCatalog(list), nil
	}
	key, err := s.cache.Key(ctx, catalogCacheKey)
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &products, func(ctx context.Context) (any, error) {
		return s.repo.ListProducts(ctx)
	})
	if err != nil {
		return nil, err
	}
	return NewCatalog(products), nil
}

// Rules returns the rules of one product.
func (s *Service) Rules(ctx context.Context, productID int64) ([]Rule, error) {
	return s.repo.ListRules(ctx, productID)
}

// Recipe returns a product with its rules.
func (s *Service) Recipe(ctx context.Context, productID int64) (Recipe, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Recipe{}, err
	}
	rules, err := s.repo.ListRules(ctx, productID)
	if err != nil {
		return Recipe{}, err
	}
	return Recipe{Product: product, Rules: rules}, nil
}

// ReplaceRecipe validates inputs and replaces the full rule set of a product.
func (s *Service) ReplaceRecipe(ctx context.Context, productID, actorID int64, inputs []RuleInput) (Recipe, error) {
	rules := make([]Rule, 0, len(inputs))
	for i, in := range inputs {
		rule, err := in.Rule(productID)
		if err != nil {
			return Recipe{}, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	if err := checkGroups(rules); err != nil {
		return Recipe{}, err
	}
	if err := s.repo.ReplaceRules(ctx, productID, rules); err != nil {
		return Recipe{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "recipes:replace",
			Entity:   "producto",
			EntityID: strconv.FormatInt(productID, 10),
			Meta:     map[string]any{"rules": len(rules)},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("cache bump failed", slog.Any("error", err))
		}
	}
	return s.Recipe(ctx, productID)
}

// checkGroups rejects an ingredient listed twice in the same variant group.
func checkGroups(rules []Rule) error {
	type slot struct {
		variant int
		group   string
		ref     string
	}
	seen := map[slot]bool{}
	for _, r := range rules {
		k := slot{variant: r.Variant, group: r.GroupKey(), ref: r.Ingredient.String()}
		if seen[k] {
			return fmt.Errorf("%w: %s repeated in group %s of variant %d", ErrInvalidRule, k.ref, k.group, k.variant)
		}
		seen[k] = true
	}
	return nil
}
