package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const challanColumns = `id::text, number, order_id::text, customer_id::text, COALESCE(location_id, ''), status,
COALESCE(carrier, ''), COALESCE(tracking_number, ''), COALESCE(notes, ''), COALESCE(created_by::text, ''),
COALESCE(dispatched_at, 'epoch'::timestamptz), COALESCE(delivered_at, 'epoch'::timestamptz), created_at, updated_at`

const itemColumns = `id::text, challan_id::text, line_no, order_item_id::text, product_id::text, sku, name, quantity, unit_cost`

// TxRepository is the set of challan statements run inside a transaction.
type TxRepository interface {
	InsertChallan(ctx context.Context, ch Challan) (Challan, error)
	InsertItem(ctx context.Context, it Item) (Item, error)
	LockChallan(ctx context.Context, id string) (Challan, error)
	UpdateStatus(ctx context.Context, ch Challan) error
	SetItemCost(ctx context.Context, itemID string, cost decimal.Decimal) error
}

// Sequencer hands out document numbers.
type Sequencer interface {
	Next(ctx context.Context, name string) (string, error)
}

// TxScope groups the challan, sales order and stock statements a dispatch
// commits together.
type TxScope struct {
	Challans  TxRepository
	Orders    sales.OrderTxRepository
	Inventory inventory.TxRepository
	Numbers   Sequencer
	Activity  ActivityRecorder
}

// Repository persists challans in PostgreSQL.
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
			Challans:  &txRepo{conn: tx},
			Orders:    sales.NewOrderTxRepository(tx),
			Inventory: inventory.NewTxRepository(tx),
			Numbers:   txSequencer{conn: tx},
			Activity:  shared.NewActivityLogger(tx),
		})
	})
}

func scanChallan(row pgx.Row) (Challan, error) {
	var ch Challan
	var status string
	err := row.Scan(&ch.ID, &ch.Number, &ch.OrderID, &ch.CustomerID, &ch.LocationID, &status, &ch.Carrier,
		&ch.TrackingNumber, &ch.Notes, &ch.CreatedBy, &ch.DispatchedAt, &ch.DeliveredAt, &ch.CreatedAt, &ch.UpdatedAt)
	ch.Status = Status(status)
	if ch.DispatchedAt.Unix() == 0 {
		ch.DispatchedAt = time.Time{}
	}
	if ch.DeliveredAt.Unix() == 0 {
		ch.DeliveredAt = time.Time{}
	}
	return ch, err
}

func loadItems(ctx context.Context, conn db.DBTX, challanID string) ([]Item, error) {
	rows, err := conn.Query(ctx, `SELECT `+itemColumns+` FROM delivery_challan_items WHERE challan_id = $1 ORDER BY line_no`, challanID)
	if err != nil {
		return nil, fmt.Errorf("delivery: load items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ChallanID, &it.LineNo, &it.OrderItemID, &it.ProductID, &it.SKU, &it.Name,
			&it.Quantity, &it.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getChallan(ctx context.Context, conn db.DBTX, query string, args ...any) (Challan, error) {
	ch, err := scanChallan(conn.QueryRow(ctx, query, args...))
	if db.IsNoRows(err) {
		return Challan{}, ErrNotFound
	}
	if err != nil {
		return Challan{}, fmt.Errorf("delivery: get challan: %w", err)
	}
	if ch.Items, err = loadItems(ctx, conn, ch.ID); err != nil {
		return Challan{}, err
	}
	return ch, nil
}

// GetChallan loads a challan with its lines.
func (r *Repository) GetChallan(ctx context.Context, id string) (Challan, error) {
	return getChallan(ctx, r.pool, `SELECT `+challanColumns+` FROM delivery_challans WHERE id::text = $1`, id)
}

// ListChallans returns a filtered page of challans without lines.
func (r *Repository) ListChallans(ctx context.Context, f ListFilters) ([]Challan, int, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OrderID != "" {
		add("order_id::text = $%d", f.OrderID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Search != "" {
		add("(number ILIKE $%[1]d OR tracking_number ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_challans WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("delivery: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+challanColumns+` FROM delivery_challans WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("delivery: list: %w", err)
	}
	defer rows.Close()
	var out []Challan
	for rows.Next() {
		ch, err := scanChallan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ch)
	}
	return out, total, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *txRepo) InsertChallan(ctx context.Context, ch Challan) (Challan, error) {
	created, err := scanChallan(r.conn.QueryRow(ctx, `
INSERT INTO delivery_challans (number, order_id, customer_id, location_id, status, carrier, tracking_number, notes, created_by)
VALUES ($1, $2::uuid, $3::uuid, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, '')::uuid)
RETURNING `+challanColumns,
		ch.Number, ch.OrderID, ch.CustomerID, ch.LocationID, string(ch.Status), ch.Carrier, ch.TrackingNumber, ch.Notes, ch.CreatedBy))
	if err != nil {
		return Challan{}, fmt.Errorf("delivery: insert challan: %w", err)
	}
	return created, nil
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO delivery_challan_items (challan_id, line_no, order_item_id, product_id, sku, name, quantity, unit_cost)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
RETURNING id::text`, it.ChallanID, it.LineNo, it.OrderItemID, it.ProductID, it.SKU, it.Name, it.Quantity).Scan(&it.ID)
	if err != nil {
		return Item{}, fmt.Errorf("delivery: insert item: %w", err)
	}
	return it, nil
}

func (r *txRepo) LockChallan(ctx context.Context, id string) (Challan, error) {
	return getChallan(ctx, r.conn, `SELECT `+challanColumns+` FROM delivery_challans WHERE id::text = $1 FOR UPDATE`, id)
}

func (r *txRepo) UpdateStatus(ctx context.Context, ch Challan) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE delivery_challans SET status = $2, carrier = NULLIF($3, ''), tracking_number = NULLIF($4, ''),
       dispatched_at = $5, delivered_at = $6, updated_at = NOW()
WHERE id::text = $1`, ch.ID, string(ch.Status), ch.Carrier, ch.TrackingNumber, nullTime(ch.DispatchedAt), nullTime(ch.DeliveredAt))
	if err != nil {
		return fmt.Errorf("delivery: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) SetItemCost(ctx context.Context, itemID string, cost decimal.Decimal) error {
	if _, err := r.conn.Exec(ctx, `UPDATE delivery_challan_items SET unit_cost = $2 WHERE id::text = $1`, itemID, cost); err != nil {
		return fmt.Errorf("delivery: set item cost: %w", err)
	}
	return nil
}
