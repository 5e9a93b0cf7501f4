package recipes

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/platform/db"
)

const foreignKeyViolation = "23503"

// Repository persists products and recipe rules in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProducts returns active products.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre, COALESCE(cristaleria_id, 0), is_active FROM productos WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.GlasswareID, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, nombre, COALESCE(cristaleria_id, 0), is_active FROM productos WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.GlasswareID, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, &inventory.NotFoundError{Entity: "product", Key: strconv.FormatInt(id, 10)}
	}
	return p, err
}

// ListRules returns every rule of a product with the display name of its
// brand group or prebatch.
func (r *Repository) ListRules(ctx context.Context, productID int64) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.producto_id, r.ingredient_type, COALESCE(r.item_id, 0), COALESCE(r.prebatch_id, 0),
COALESCE(r.marca_id, 0), r.consumo_ml, COALESCE(r.prioridad_item, 1), COALESCE(r.recipe_variant, 1),
COALESCE(m.nombre, pb.nombre, '')
FROM recetas r
LEFT JOIN items i ON i.id = r.item_id
LEFT JOIN marcas m ON m.id = COALESCE(r.marca_id, i.marca_id)
LEFT JOIN prebatches pb ON pb.id = r.prebatch_id
WHERE r.producto_id = $1
ORDER BY r.id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules := []Rule{}
	for rows.Next() {
		var (
			rule               Rule
			kind               string
			itemID, prebatchID int64
		)
		if err := rows.Scan(&rule.ID, &rule.ProductID, &kind, &itemID, &prebatchID, &rule.GroupID,
			&rule.ConsumptionML, &rule.Priority, &rule.Variant, &rule.Label); err != nil {
			return nil, err
		}
		rule.Ingredient = ingredientFromRow(inventory.IngredientKind(kind), itemID, prebatchID)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ingredientFromRow returns the zero ref for rows violating the
// item_id XOR prebatch_id rule, which the resolver reports as invalid.
func ingredientFromRow(kind inventory.IngredientKind, itemID, prebatchID int64) inventory.IngredientRef {
	switch {
	case kind == inventory.KindItem && itemID > 0 && prebatchID == 0:
		return inventory.ItemRef(itemID)
	case kind == inventory.KindPrebatch && prebatchID > 0 && itemID == 0:
		return inventory.PrebatchRef(prebatchID)
	}
	return inventory.IngredientRef{}
}

// ReplaceRules swaps the full rule set of a product in one transaction.
func (r *Repository) ReplaceRules(ctx context.Context, productID int64, rules []Rule) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM productos WHERE id=$1 FOR UPDATE`, productID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return &inventory.NotFoundError{Entity: "product", Key: strconv.FormatInt(productID, 10)}
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM recetas WHERE producto_id=$1`, productID); err != nil {
			return err
		}
		for _, rule := range rules {
			var itemID, prebatchID, brandID any
			if rule.Ingredient.IsItem() {
				itemID = rule.Ingredient.ID()
			} else {
				prebatchID = rule.Ingredient.ID()
			}
			if rule.GroupID != 0 {
				brandID = rule.GroupID
			}
			_, err := tx.Exec(ctx, `INSERT INTO recetas (producto_id, ingredient_type, item_id, prebatch_id, marca_id, consumo_ml, prioridad_item, recipe_variant)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, productID, string(rule.Ingredient.Kind()), itemID, prebatchID, brandID, rule.ConsumptionML, rule.Priority, rule.Variant)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
					return fmt.Errorf("%w: %s references a missing row", ErrInvalidRule, rule.Ingredient)
				}
				return err
			}
		}
		return nil
	})
}
