package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/barstock/internal/platform/db"
	"github.com/odyssey-erp/barstock/internal/shared"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside one read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `i.id, COALESCE(i.marca_id, 0), COALESCE(m.nombre, ''), COALESCE(i.variante, ''),
i.cantidad_por_envase, i.unidad, COALESCE(i.factor_conversion, 1), i.stock_unidades, COALESCE(i.stock_minimo, 0), i.is_active`

const prebatchColumns = `id, nombre, fecha_produccion, fecha_vencimiento, cantidad_inicial_ml, cantidad_actual_ml,
COALESCE(identificador_lote, ''), COALESCE(categoria, ''), is_active`

func (r *txRepository) LockItems(ctx context.Context, ids []int64) ([]StockItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+`
FROM items i LEFT JOIN marcas m ON m.id = i.marca_id
WHERE i.id = ANY($1)
ORDER BY i.id
FOR UPDATE OF i`, ids)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *txRepository) LockPrebatches(ctx context.Context, ids []int64) ([]Prebatch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+prebatchColumns+`
FROM prebatches
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return collectPrebatches(rows)
}

func (r *txRepository) InsertPrebatch(ctx context.Context, p Prebatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO prebatches (nombre, fecha_produccion, fecha_vencimiento, cantidad_inicial_ml, cantidad_actual_ml, identificador_lote, categoria, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, p.Name, p.ProducedAt, p.ExpiresAt, p.InitialML, p.RemainingML, nullString(p.Lot), nullString(p.Category), p.Active).Scan(&id)
	return id, err
}

func (r *txRepository) InsertEvent(ctx context.Context, e Event) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_eventos (referencia, tipo, descripcion, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, e.Reference, string(e.Kind), e.Description, nullInt(e.ActorID), e.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertMovements(ctx context.Context, eventID int64, movements []Movement) error {
	batch := &pgx.Batch{}
	for _, m := range movements {
		var itemID, prebatchID any
		if m.Ref.IsItem() {
			itemID = m.Ref.ID()
		} else {
			prebatchID = m.Ref.ID()
		}
		batch.Queue(`INSERT INTO stock_movimientos (evento_id, item_id, prebatch_id, stock_anterior, stock_nuevo, cantidad_unidades_movidas, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, eventID, itemID, prebatchID, m.Before, m.After, m.Delta, m.CreatedAt)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) UpdateItemStock(ctx context.Context, itemID int64, units float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET stock_unidades=$2 WHERE id=$1`, itemID, units)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "item", Key: formatID(itemID)}
	}
	return nil
}

func (r *txRepository) UpdatePrebatchStock(ctx context.Context, prebatchID int64, ml float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE prebatches SET cantidad_actual_ml=$2 WHERE id=$1`, prebatchID, ml)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "prebatch", Key: formatID(prebatchID)}
	}
	return nil
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, module, key string) error {
	return shared.ClaimIdempotencyKey(ctx, r.tx, module, key)
}

// ListLowStock returns active items at or below their threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+`
FROM items i LEFT JOIN marcas m ON m.id = i.marca_id
WHERE i.is_active AND i.stock_unidades <= COALESCE(i.stock_minimo, 0)
ORDER BY m.nombre, i.id`)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListPrebatches returns prebatches, newest production first.
func (r *Repository) ListPrebatches(ctx context.Context, activeOnly bool) ([]Prebatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+prebatchColumns+`
FROM prebatches
WHERE ($1 = false OR is_active)
ORDER BY fecha_produccion DESC, id DESC`, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectPrebatches(rows)
}

// ListMovements returns one entity's movements, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	column := "item_id"
	if filter.Ref.IsPrebatch() {
		column = "prebatch_id"
	}
	rows, err := r.pool.Query(ctx, `SELECT id, evento_id, item_id, prebatch_id, stock_anterior, stock_nuevo, cantidad_unidades_movidas, created_at
FROM stock_movimientos
WHERE `+column+` = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, filter.Ref.ID(), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var (
			m          Movement
			itemID     *int64
			prebatchID *int64
		)
		if err := rows.Scan(&m.ID, &m.EventID, &itemID, &prebatchID, &m.Before, &m.After, &m.Delta, &m.CreatedAt); err != nil {
			return nil, err
		}
		switch {
		case itemID != nil:
			m.Ref = ItemRef(*itemID)
		case prebatchID != nil:
			m.Ref = PrebatchRef(*prebatchID)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func collectItems(rows pgx.Rows) ([]StockItem, error) {
	defer rows.Close()
	items := []StockItem{}
	for rows.Next() {
		var item StockItem
		var unit string
		if err := rows.Scan(&item.ID, &item.BrandID, &item.BrandName, &item.Variant, &item.ContainerSize, &unit,
			&item.ConversionFactor, &item.StockUnits, &item.LowStockThreshold, &item.Active); err != nil {
			return nil, err
		}
		item.Unit = Unit(unit)
		items = append(items, item)
	}
	return items, rows.Err()
}

func collectPrebatches(rows pgx.Rows) ([]Prebatch, error) {
	defer rows.Close()
	prebatches := []Prebatch{}
	for rows.Next() {
		var p Prebatch
		var expires *time.Time
		if err := rows.Scan(&p.ID, &p.Name, &p.ProducedAt, &expires, &p.InitialML, &p.RemainingML, &p.Lot, &p.Category, &p.Active); err != nil {
			return nil, err
		}
		p.ExpiresAt = expires
		prebatches = append(prebatches, p)
	}
	return prebatches, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
