package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/shared"
)

const orderColumns = `id::text, number, customer_id::text, status, order_date, COALESCE(expected_date, 'epoch'::date),
subtotal, discount, tax, total, COALESCE(notes, ''), COALESCE(created_by::text, ''), created_at, updated_at`

const orderItemColumns = `id::text, order_id::text, line_no, product_id::text, sku, name, quantity, delivered_qty,
unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total`

type orderTxRepo struct {
	conn db.DBTX
}

// NewOrderTxRepository binds sales order statements to an open transaction.
func NewOrderTxRepository(conn db.DBTX) OrderTxRepository {
	return &orderTxRepo{conn: conn}
}

// WithOrderTx runs fn with an order scope bound to one transaction.
func (r *Repository) WithOrderTx(ctx context.Context, fn func(context.Context, OrderTxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, OrderTxScope{
			Orders:   &orderTxRepo{conn: tx},
			Numbers:  txSequencer{conn: tx},
			Activity: shared.NewActivityLogger(tx),
		})
	})
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &status, &o.OrderDate, &o.ExpectedDate, &o.Subtotal,
		&o.Discount, &o.Tax, &o.Total, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Status = OrderStatus(status)
	if o.ExpectedDate.Unix() == 0 {
		o.ExpectedDate = time.Time{}
	}
	return o, err
}

func loadOrderItems(ctx context.Context, conn db.DBTX, orderID string) ([]OrderItem, error) {
	rows, err := conn.Query(ctx, `SELECT `+orderItemColumns+` FROM sales_order_items WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sales: load order items: %w", err)
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.LineNo, &it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.DeliveredQty,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getOrder(ctx context.Context, conn db.DBTX, query string, args ...any) (Order, error) {
	o, err := scanOrder(conn.QueryRow(ctx, query, args...))
	if db.IsNoRows(err) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("sales: get order: %w", err)
	}
	if o.Items, err = loadOrderItems(ctx, conn, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetOrder loads a sales order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id string) (Order, error) {
	return getOrder(ctx, r.pool, `SELECT `+orderColumns+` FROM sales_orders WHERE id::text = $1`, id)
}

// ListOrders returns a filtered page of sales orders without lines.
func (r *Repository) ListOrders(ctx context.Context, f OrderFilters) ([]Order, int, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id::text = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Search != "" {
		add("number ILIKE $%d", "%"+f.Search+"%")
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count orders: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *orderTxRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	created, err := scanOrder(r.conn.QueryRow(ctx, `
INSERT INTO sales_orders (number, customer_id, status, order_date, expected_date, subtotal, discount, tax, total,
                          notes, created_by)
VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, '')::uuid)
RETURNING `+orderColumns,
		o.Number, o.CustomerID, string(o.Status), o.OrderDate, nullDate(o.ExpectedDate), o.Subtotal, o.Discount, o.Tax,
		o.Total, o.Notes, o.CreatedBy))
	if err != nil {
		return Order{}, fmt.Errorf("sales: insert order: %w", err)
	}
	return created, nil
}

func (r *orderTxRepo) UpdateOrderDraft(ctx context.Context, o Order) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sales_orders SET customer_id = $2::uuid, order_date = $3, expected_date = $4, subtotal = $5, discount = $6,
       tax = $7, total = $8, notes = NULLIF($9, ''), updated_at = NOW()
WHERE id::text = $1 AND status = 'draft'`,
		o.ID, o.CustomerID, o.OrderDate, nullDate(o.ExpectedDate), o.Subtotal, o.Discount, o.Tax, o.Total, o.Notes)
	if err != nil {
		return fmt.Errorf("sales: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotEditable
	}
	return nil
}

func (r *orderTxRepo) DeleteOrderItems(ctx context.Context, orderID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM sales_order_items WHERE order_id::text = $1`, orderID); err != nil {
		return fmt.Errorf("sales: delete order items: %w", err)
	}
	return nil
}

func (r *orderTxRepo) InsertOrderItem(ctx context.Context, it OrderItem) (OrderItem, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO sales_order_items (order_id, line_no, product_id, sku, name, quantity, delivered_qty, unit_price,
                               discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11, $12)
RETURNING id::text`, it.OrderID, it.LineNo, it.ProductID, it.SKU, it.Name, it.Quantity, it.UnitPrice,
		it.DiscountPercent, it.TaxPercent, it.DiscountAmount, it.TaxAmount, it.LineTotal).Scan(&it.ID)
	if err != nil {
		return OrderItem{}, fmt.Errorf("sales: insert order item: %w", err)
	}
	return it, nil
}

func (r *orderTxRepo) LockOrder(ctx context.Context, id string) (Order, error) {
	return getOrder(ctx, r.conn, `SELECT `+orderColumns+` FROM sales_orders WHERE id::text = $1 FOR UPDATE`, id)
}

func (r *orderTxRepo) SetOrderStatus(ctx context.Context, id string, status OrderStatus) error {
	tag, err := r.conn.Exec(ctx, `UPDATE sales_orders SET status = $2, updated_at = NOW() WHERE id::text = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("sales: set order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AddDelivered moves a line's delivered quantity, never below zero or past
// what was ordered.
func (r *orderTxRepo) AddDelivered(ctx context.Context, itemID string, qty decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE sales_order_items SET delivered_qty = delivered_qty + $2
WHERE id::text = $1 AND delivered_qty + $2 BETWEEN 0 AND quantity`, itemID, qty)
	if err != nil {
		return fmt.Errorf("sales: update delivered qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverDelivery
	}
	return nil
}

func (r *orderTxRepo) Product(ctx context.Context, id string) (ProductRef, error) {
	return (&txRepo{conn: r.conn}).Product(ctx, id)
}
