package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the statements a movement runs inside one transaction.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, locationID, productID string) (Balance, error)
	ApplyDelta(ctx context.Context, locationID, productID string, delta, avgCost decimal.Decimal, allowNegative bool) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m Movement) (string, error)
	InsertCardEntry(ctx context.Context, card StockCardEntry, locationID, productID, movementID string) error
	ProductIDBySKU(ctx context.Context, sku string) (string, error)
}

type txRepo struct {
	conn db.DBTX
}

// NewTxRepository binds the movement statements to conn, typically a pgx.Tx
// owned by another module posting stock as part of its own transaction.
func NewTxRepository(conn db.DBTX) TxRepository {
	return &txRepo{conn: conn}
}

// WithTx executes fn inside a read-committed transaction. Balance rows are
// locked with SELECT ... FOR UPDATE so concurrent movements serialise.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{conn: tx})
	})
}

// GetStockCard lists card entries oldest first.
func (r *Repository) GetStockCard(ctx context.Context, f StockCardFilter) ([]StockCardEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
SELECT code, type, posted_at, qty_in, qty_out, balance_qty, unit_cost, balance_cost,
       COALESCE(ref_module, ''), COALESCE(ref_id, ''), COALESCE(note, '')
FROM stock_card
WHERE location_id = $1 AND product_id = $2
  AND ($3::timestamptz IS NULL OR posted_at >= $3)
  AND ($4::timestamptz IS NULL OR posted_at <= $4)
ORDER BY posted_at, id
LIMIT $5`, f.LocationID, f.ProductID, nullTime(f.From), nullTime(f.To), limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: stock card: %w", err)
	}
	defer rows.Close()
	var cards []StockCardEntry
	for rows.Next() {
		var c StockCardEntry
		var typ string
		if err := rows.Scan(&c.Code, &typ, &c.PostedAt, &c.QtyIn, &c.QtyOut, &c.BalanceQty, &c.UnitCost, &c.BalanceCost,
			&c.RefModule, &c.RefID, &c.Note); err != nil {
			return nil, err
		}
		c.Type = MovementType(typ)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ListBalances returns balances joined with product details.
func (r *Repository) ListBalances(ctx context.Context, f BalanceFilters) ([]Balance, error) {
	var (
		where []string
		args  []any
	)
	if f.LocationID != "" {
		args = append(args, f.LocationID)
		where = append(where, fmt.Sprintf("b.location_id = $%d", len(args)))
	}
	if f.LowOnly {
		where = append(where, "b.qty <= p.reorder_level")
	}
	query := `
SELECT b.location_id, b.product_id, p.sku, p.name, b.qty, b.avg_cost, p.reorder_level, b.updated_at
FROM stock_balances b
JOIN products p ON p.id = b.product_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY p.sku, b.location_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list balances: %w", err)
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.LocationID, &b.ProductID, &b.SKU, &b.Name, &b.Qty, &b.AvgCost, &b.ReorderLevel, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ProductBalances returns the balances of one product across locations.
func (r *Repository) ProductBalances(ctx context.Context, productID string) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
SELECT b.location_id, b.product_id, p.sku, p.name, b.qty, b.avg_cost, p.reorder_level, b.updated_at
FROM stock_balances b
JOIN products p ON p.id = b.product_id
WHERE b.product_id = $1
ORDER BY b.location_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("inventory: product balances: %w", err)
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.LocationID, &b.ProductID, &b.SKU, &b.Name, &b.Qty, &b.AvgCost, &b.ReorderLevel, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBalanceForUpdate creates a zero balance row when none exists and then
// locks it, so the first movements on a fresh location and product serialise
// on the same row.
func (r *txRepo) GetBalanceForUpdate(ctx context.Context, locationID, productID string) (Balance, error) {
	b := Balance{LocationID: locationID, ProductID: productID}
	if _, err := r.conn.Exec(ctx, `
INSERT INTO stock_balances (location_id, product_id, qty, avg_cost, updated_at)
VALUES ($1, $2, 0, 0, NOW())
ON CONFLICT (location_id, product_id) DO NOTHING`, locationID, productID); err != nil {
		return Balance{}, fmt.Errorf("inventory: ensure balance: %w", err)
	}
	err := r.conn.QueryRow(ctx, `
SELECT qty, avg_cost, updated_at FROM stock_balances
WHERE location_id = $1 AND product_id = $2
FOR UPDATE`, locationID, productID).Scan(&b.Qty, &b.AvgCost, &b.UpdatedAt)
	if db.IsNoRows(err) {
		return b, ErrBalanceNotFound
	}
	if err != nil {
		return Balance{}, fmt.Errorf("inventory: lock balance: %w", err)
	}
	return b, nil
}

// ApplyDelta adds delta to the balance in one conditional statement. When the
// result would be negative and allowNegative is false no row is returned and
// ErrNegativeStock is reported.
func (r *txRepo) ApplyDelta(ctx context.Context, locationID, productID string, delta, avgCost decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.conn.QueryRow(ctx, `
INSERT INTO stock_balances (location_id, product_id, qty, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (location_id, product_id) DO UPDATE
SET qty = stock_balances.qty + EXCLUDED.qty,
    avg_cost = EXCLUDED.avg_cost,
    updated_at = NOW()
WHERE $5 OR stock_balances.qty + EXCLUDED.qty >= 0
RETURNING qty`, locationID, productID, delta, avgCost, allowNegative).Scan(&qty)
	if db.IsNoRows(err) {
		return decimal.Zero, ErrNegativeStock
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: apply delta: %w", err)
	}
	return qty, nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (string, error) {
	var id string
	err := r.conn.QueryRow(ctx, `
INSERT INTO stock_movements (code, type, location_id, product_id, qty, unit_cost, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, NULLIF($11, '')::uuid)
RETURNING id::text`, m.Code, string(m.Type), m.LocationID, m.ProductID, m.Qty, m.UnitCost,
		m.RefModule, m.RefID, m.Note, m.PostedAt, m.CreatedBy).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inventory: insert movement: %w", err)
	}
	return id, nil
}

func (r *txRepo) InsertCardEntry(ctx context.Context, c StockCardEntry, locationID, productID, movementID string) error {
	_, err := r.conn.Exec(ctx, `
INSERT INTO stock_card (location_id, product_id, movement_id, code, type, qty_in, qty_out, balance_qty, unit_cost, balance_cost, ref_module, ref_id, note, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14)`,
		locationID, productID, movementID, c.Code, string(c.Type), c.QtyIn, c.QtyOut, c.BalanceQty, c.UnitCost, c.BalanceCost,
		c.RefModule, c.RefID, c.Note, c.PostedAt)
	if err != nil {
		return fmt.Errorf("inventory: insert card: %w", err)
	}
	return nil
}

func (r *txRepo) ProductIDBySKU(ctx context.Context, sku string) (string, error) {
	var id string
	err := r.conn.QueryRow(ctx, `SELECT id::text FROM products WHERE sku = $1`, strings.ToUpper(strings.TrimSpace(sku))).Scan(&id)
	if db.IsNoRows(err) {
		return "", ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("inventory: product by sku: %w", err)
	}
	return id, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
