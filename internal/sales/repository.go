package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/register"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const saleColumns = `id::text, number, source, COALESCE(shift_id::text, ''), COALESCE(customer_id::text, ''), status,
payment_method, subtotal, discount, tax, total, refunded_total, points_earned, COALESCE(external_order_id, ''),
COALESCE(external_status, ''), COALESCE(notes, ''), COALESCE(created_by::text, ''), created_at, updated_at`

const itemColumns = `id::text, sale_id::text, line_no, product_id::text, sku, name, quantity, unit_price, discount_percent,
tax_percent, discount_amount, tax_amount, line_total, cost_price, returned_qty`

// TxRepository is the set of sale statements run inside a posting
// transaction.
type TxRepository interface {
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertItem(ctx context.Context, it Item) (Item, error)
	LockSale(ctx context.Context, id string) (Sale, error)
	LockByExternalID(ctx context.Context, externalID string) (Sale, error)
	UpdateStatus(ctx context.Context, id string, status Status, externalStatus string) error
	UpdateDetails(ctx context.Context, id, notes, customerID string) error
	PointsReversed(ctx context.Context, saleID string) (int64, error)
	AddReturned(ctx context.Context, itemID string, qty decimal.Decimal) error
	AddRefunded(ctx context.Context, id string, amount decimal.Decimal) error
	InsertReturn(ctx context.Context, r Return) (Return, error)
	InsertReturnItem(ctx context.Context, it ReturnItem) (ReturnItem, error)
	Product(ctx context.Context, id string) (ProductRef, error)
	ProductBySKU(ctx context.Context, sku string) (ProductRef, error)
}

// Sequencer hands out document numbers.
type Sequencer interface {
	Next(ctx context.Context, name string) (string, error)
}

// TxScope groups every repository a sale touches so stock, drawer and
// document rows commit or roll back together.
type TxScope struct {
	Sales     TxRepository
	Inventory inventory.TxRepository
	Register  register.TxRepository
	Numbers   Sequencer
	Activity  ActivityRecorder
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	conn db.DBTX
}

type txSequencer struct {
	conn db.DBTX
}

func (s txSequencer) Next(ctx context.Context, name string) (string, error) {
	return settings.NextNumber(ctx, s.conn, name)
}

// WithTx runs fn with a scope bound to one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxScope{
			Sales:     &txRepo{conn: tx},
			Inventory: inventory.NewTxRepository(tx),
			Register:  register.NewTxRepository(tx),
			Numbers:   txSequencer{conn: tx},
			Activity:  shared.NewActivityLogger(tx),
		})
	})
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var source, status string
	err := row.Scan(&s.ID, &s.Number, &source, &s.ShiftID, &s.CustomerID, &status, &s.PaymentMethod,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.RefundedTotal, &s.PointsEarned, &s.ExternalOrderID,
		&s.ExternalStatus, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	s.Source = Source(source)
	s.Status = Status(status)
	return s, err
}

func loadItems(ctx context.Context, conn db.DBTX, saleID string) ([]Item, error) {
	rows, err := conn.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = $1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sales: load items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.LineNo, &it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal, &it.CostPrice, &it.ReturnedQty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getSale(ctx context.Context, conn db.DBTX, query string, args ...any) (Sale, error) {
	s, err := scanSale(conn.QueryRow(ctx, query, args...))
	if db.IsNoRows(err) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, fmt.Errorf("sales: get sale: %w", err)
	}
	if s.Items, err = loadItems(ctx, conn, s.ID); err != nil {
		return Sale{}, err
	}
	return s, nil
}

// GetSale loads a sale with its items.
func (r *Repository) GetSale(ctx context.Context, id string) (Sale, error) {
	return getSale(ctx, r.pool, `SELECT `+saleColumns+` FROM sales WHERE id::text = $1`, id)
}

// ListSales returns a filtered page of sales without items.
func (r *Repository) ListSales(ctx context.Context, f ListFilters) ([]Sale, int, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.CustomerID != "" {
		add("customer_id::text = $%d", f.CustomerID)
	}
	if f.ShiftID != "" {
		add("shift_id::text = $%d", f.ShiftID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Search != "" {
		add("(number ILIKE $%[1]d OR external_order_id ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// SetPointsEarned stores the loyalty points a sale accrued.
func (r *Repository) SetPointsEarned(ctx context.Context, id string, points int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET points_earned = $2, updated_at = NOW() WHERE id::text = $1`, id, points)
	if err != nil {
		return fmt.Errorf("sales: set points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const returnColumns = `id::text, number, sale_id::text, COALESCE(shift_id::text, ''), reason, refund, points_reversed,
COALESCE(created_by::text, ''), created_at`

func scanReturn(row pgx.Row) (Return, error) {
	var rt Return
	err := row.Scan(&rt.ID, &rt.Number, &rt.SaleID, &rt.ShiftID, &rt.Reason, &rt.Refund, &rt.Points, &rt.CreatedBy, &rt.CreatedAt)
	return rt, err
}

// GetReturn loads a return with its items.
func (r *Repository) GetReturn(ctx context.Context, id string) (Return, error) {
	rt, err := scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM sale_returns WHERE id::text = $1`, id))
	if db.IsNoRows(err) {
		return Return{}, ErrReturnNotFound
	}
	if err != nil {
		return Return{}, fmt.Errorf("sales: get return: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id::text, return_id::text, sale_item_id::text, product_id::text, quantity, amount
FROM sale_return_items WHERE return_id = $1 ORDER BY id`, rt.ID)
	if err != nil {
		return Return{}, fmt.Errorf("sales: return items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it ReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.SaleItemID, &it.ProductID, &it.Quantity, &it.Amount); err != nil {
			return Return{}, err
		}
		rt.Items = append(rt.Items, it)
	}
	return rt, rows.Err()
}

// ListReturns returns the credit notes raised against a sale.
func (r *Repository) ListReturns(ctx context.Context, saleID string) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM sale_returns WHERE sale_id::text = $1 ORDER BY created_at`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sales: list returns: %w", err)
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		rt, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	created, err := scanSale(r.conn.QueryRow(ctx, `
INSERT INTO sales (number, source, shift_id, customer_id, status, payment_method, subtotal, discount, tax, total,
                   external_order_id, external_status, notes, created_by)
VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10,
        NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, '')::uuid)
RETURNING `+saleColumns,
		s.Number, string(s.Source), s.ShiftID, s.CustomerID, string(s.Status), s.PaymentMethod, s.Subtotal, s.Discount,
		s.Tax, s.Total, s.ExternalOrderID, s.ExternalStatus, s.Notes, s.CreatedBy))
	if db.IsUniqueViolation(err) {
		return Sale{}, ErrDuplicateOrder
	}
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	return created, nil
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO sale_items (sale_id, line_no, product_id, sku, name, quantity, unit_price, discount_percent, tax_percent,
                        discount_amount, tax_amount, line_total, cost_price, returned_qty)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0)
RETURNING id::text`, it.SaleID, it.LineNo, it.ProductID, it.SKU, it.Name, it.Quantity, it.UnitPrice, it.DiscountPercent,
		it.TaxPercent, it.DiscountAmount, it.TaxAmount, it.LineTotal, it.CostPrice).Scan(&it.ID)
	if err != nil {
		return Item{}, fmt.Errorf("sales: insert item: %w", err)
	}
	return it, nil
}

func (r *txRepo) LockSale(ctx context.Context, id string) (Sale, error) {
	return getSale(ctx, r.conn, `SELECT `+saleColumns+` FROM sales WHERE id::text = $1 FOR UPDATE`, id)
}

func (r *txRepo) LockByExternalID(ctx context.Context, externalID string) (Sale, error) {
	return getSale(ctx, r.conn, `SELECT `+saleColumns+` FROM sales WHERE external_order_id = $1 FOR UPDATE`, externalID)
}

func (r *txRepo) UpdateStatus(ctx context.Context, id string, status Status, externalStatus string) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sales SET status = $2, external_status = COALESCE(NULLIF($3, ''), external_status), updated_at = NOW()
WHERE id::text = $1`, id, string(status), externalStatus)
	if err != nil {
		return fmt.Errorf("sales: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) UpdateDetails(ctx context.Context, id, notes, customerID string) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sales SET notes = NULLIF($2, ''), customer_id = NULLIF($3, '')::uuid, updated_at = NOW()
WHERE id::text = $1`, id, notes, customerID)
	if err != nil {
		return fmt.Errorf("sales: update details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PointsReversed sums the points the returns of a sale already took back.
func (r *txRepo) PointsReversed(ctx context.Context, saleID string) (int64, error) {
	var total int64
	if err := r.conn.QueryRow(ctx, `SELECT COALESCE(SUM(points_reversed), 0)::bigint FROM sale_returns WHERE sale_id::text = $1`, saleID).
		Scan(&total); err != nil {
		return 0, fmt.Errorf("sales: points reversed: %w", err)
	}
	return total, nil
}

// AddReturned raises an item's returned quantity, never past what was sold.
func (r *txRepo) AddReturned(ctx context.Context, itemID string, qty decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sale_items SET returned_qty = returned_qty + $2
WHERE id::text = $1 AND returned_qty + $2 <= quantity`, itemID, qty)
	if err != nil {
		return fmt.Errorf("sales: update returned qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnExceedsSold
	}
	return nil
}

func (r *txRepo) AddRefunded(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sales SET refunded_total = refunded_total + $2, updated_at = NOW()
WHERE id::text = $1 AND refunded_total + $2 <= total`, id, amount)
	if err != nil {
		return fmt.Errorf("sales: update refunded total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReturnExceedsSold
	}
	return nil
}

func (r *txRepo) InsertReturn(ctx context.Context, rt Return) (Return, error) {
	created, err := scanReturn(r.conn.QueryRow(ctx, `
INSERT INTO sale_returns (number, sale_id, shift_id, reason, refund, points_reversed, created_by)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, NULLIF($7, '')::uuid)
RETURNING `+returnColumns, rt.Number, rt.SaleID, rt.ShiftID, rt.Reason, rt.Refund, rt.Points, rt.CreatedBy))
	if err != nil {
		return Return{}, fmt.Errorf("sales: insert return: %w", err)
	}
	return created, nil
}

func (r *txRepo) InsertReturnItem(ctx context.Context, it ReturnItem) (ReturnItem, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO sale_return_items (return_id, sale_item_id, product_id, quantity, amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text`, it.ReturnID, it.SaleItemID, it.ProductID, it.Quantity, it.Amount).Scan(&it.ID)
	if err != nil {
		return ReturnItem{}, fmt.Errorf("sales: insert return item: %w", err)
	}
	return it, nil
}

func (r *txRepo) product(ctx context.Context, cond string, arg any) (ProductRef, error) {
	var p ProductRef
	err := r.conn.QueryRow(ctx, `SELECT id::text, sku, name, price, tax_rate, is_active FROM products WHERE `+cond, arg).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.TaxRate, &p.IsActive)
	if db.IsNoRows(err) {
		return ProductRef{}, fmt.Errorf("%w: %v", ErrProductUnavailable, arg)
	}
	if err != nil {
		return ProductRef{}, fmt.Errorf("sales: load product: %w", err)
	}
	return p, nil
}

func (r *txRepo) Product(ctx context.Context, id string) (ProductRef, error) {
	return r.product(ctx, `id::text = $1`, id)
}

func (r *txRepo) ProductBySKU(ctx context.Context, sku string) (ProductRef, error) {
	return r.product(ctx, `sku = $1`, sku)
}
