package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const invoiceColumns = `id::text, number, status, COALESCE(customer_id::text, ''), COALESCE(sale_id::text, ''),
billing_name, COALESCE(billing_address, ''), COALESCE(billing_phone, ''), COALESCE(billing_tax_id, ''),
COALESCE(issue_date, 'epoch'::timestamptz), COALESCE(due_date, 'epoch'::timestamptz), subtotal, discount, tax, total,
paid_total, credited_total, COALESCE(notes, ''), COALESCE(created_by::text, ''), created_at, updated_at`

const itemColumns = `id::text, invoice_id::text, line_no, COALESCE(product_id::text, ''), description, quantity,
unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total, credited_qty`

const creditNoteColumns = `id::text, number, invoice_id::text, reason, total, COALESCE(created_by::text, ''), created_at`

// TxRepository is the set of invoice statements run inside a transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateDraft(ctx context.Context, inv Invoice) error
	DeleteItems(ctx context.Context, invoiceID string) error
	InsertItem(ctx context.Context, it Item) (Item, error)
	LockInvoice(ctx context.Context, id string) (Invoice, error)
	MarkIssued(ctx context.Context, id string, at time.Time) error
	SetStatus(ctx context.Context, id string, status Status) error
	DeleteDraft(ctx context.Context, id string) error
	AddPaid(ctx context.Context, id string, amount decimal.Decimal) (Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	AddCredited(ctx context.Context, id string, amount decimal.Decimal) (Invoice, error)
	AddItemCredited(ctx context.Context, itemID string, qty decimal.Decimal) error
	InsertCreditNote(ctx context.Context, cn CreditNote) (CreditNote, error)
	InsertCreditNoteItem(ctx context.Context, it CreditNoteItem) (CreditNoteItem, error)
}

// Sequencer hands out document numbers.
type Sequencer interface {
	Next(ctx context.Context, name string) (string, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// TxScope is what a write sees inside its transaction.
type TxScope struct {
	Invoices TxRepository
	Numbers  Sequencer
	Activity ActivityRecorder
}

// Repository persists invoices in PostgreSQL.
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

// WithTx runs fn inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxScope{
			Invoices: &txRepo{conn: tx},
			Numbers:  txSequencer{conn: tx},
			Activity: shared.NewActivityLogger(tx),
		})
	})
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &status, &inv.CustomerID, &inv.SaleID, &inv.BillingName, &inv.BillingAddr,
		&inv.BillingPhone, &inv.BillingTaxID, &inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.Discount, &inv.Tax,
		&inv.Total, &inv.PaidTotal, &inv.CreditedTotal, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Status = Status(status)
	if inv.IssueDate.Unix() == 0 {
		inv.IssueDate = time.Time{}
	}
	if inv.DueDate.Unix() == 0 {
		inv.DueDate = time.Time{}
	}
	return inv, err
}

func loadItems(ctx context.Context, conn db.DBTX, invoiceID string) ([]Item, error) {
	rows, err := conn.Query(ctx, `SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id = $1 ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: load items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.LineNo, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal, &it.CreditedQty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getInvoice(ctx context.Context, conn db.DBTX, query string, args ...any) (Invoice, error) {
	inv, err := scanInvoice(conn.QueryRow(ctx, query, args...))
	if db.IsNoRows(err) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: get invoice: %w", err)
	}
	if inv.Items, err = loadItems(ctx, conn, inv.ID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetInvoice loads an invoice with its items.
func (r *Repository) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return getInvoice(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE id::text = $1`, id)
}

// ListInvoices returns a filtered page of invoices without items.
func (r *Repository) ListInvoices(ctx context.Context, f ListFilters) ([]Invoice, int, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CustomerID != "" {
		add("customer_id::text = $%d", f.CustomerID)
	}
	if f.Search != "" {
		add("(number ILIKE $%[1]d OR billing_name ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	if f.Overdue {
		conds = append(conds, "status IN ('issued','partially_paid') AND due_date < NOW()")
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoicing: count: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("invoicing: list: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// ListPayments returns the payments of an invoice, oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID string) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, invoice_id::text, amount, method, COALESCE(reference, ''), paid_at,
COALESCE(created_by::text, '') FROM invoice_payments WHERE invoice_id::text = $1 ORDER BY paid_at`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: list payments: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanCreditNote(row pgx.Row) (CreditNote, error) {
	var cn CreditNote
	err := row.Scan(&cn.ID, &cn.Number, &cn.InvoiceID, &cn.Reason, &cn.Total, &cn.CreatedBy, &cn.CreatedAt)
	return cn, err
}

// ListCreditNotes returns the credit notes raised against an invoice.
func (r *Repository) ListCreditNotes(ctx context.Context, invoiceID string) ([]CreditNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes WHERE invoice_id::text = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: list credit notes: %w", err)
	}
	defer rows.Close()
	var out []CreditNote
	for rows.Next() {
		cn, err := scanCreditNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cn)
	}
	return out, rows.Err()
}

// GetCreditNote loads a credit note with its items.
func (r *Repository) GetCreditNote(ctx context.Context, id string) (CreditNote, error) {
	cn, err := scanCreditNote(r.pool.QueryRow(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes WHERE id::text = $1`, id))
	if db.IsNoRows(err) {
		return CreditNote{}, ErrCreditNoteNotFound
	}
	if err != nil {
		return CreditNote{}, fmt.Errorf("invoicing: get credit note: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id::text, credit_note_id::text, invoice_item_id::text, quantity, amount
FROM credit_note_items WHERE credit_note_id = $1 ORDER BY id`, cn.ID)
	if err != nil {
		return CreditNote{}, fmt.Errorf("invoicing: credit note items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it CreditNoteItem
		if err := rows.Scan(&it.ID, &it.CreditNoteID, &it.InvoiceItemID, &it.Quantity, &it.Amount); err != nil {
			return CreditNote{}, err
		}
		cn.Items = append(cn.Items, it)
	}
	return cn, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	created, err := scanInvoice(r.conn.QueryRow(ctx, `
INSERT INTO invoices (number, status, customer_id, sale_id, billing_name, billing_address, billing_phone, billing_tax_id,
                      due_date, subtotal, discount, tax, total, notes, created_by)
VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
        $9, $10, $11, $12, $13, NULLIF($14, ''), NULLIF($15, '')::uuid)
RETURNING `+invoiceColumns,
		inv.Number, string(inv.Status), inv.CustomerID, inv.SaleID, inv.BillingName, inv.BillingAddr, inv.BillingPhone,
		inv.BillingTaxID, nullTime(inv.DueDate), inv.Subtotal, inv.Discount, inv.Tax, inv.Total, inv.Notes, inv.CreatedBy))
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: insert invoice: %w", err)
	}
	return created, nil
}

func (r *txRepo) UpdateDraft(ctx context.Context, inv Invoice) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE invoices SET customer_id = NULLIF($2, '')::uuid, sale_id = NULLIF($3, '')::uuid, billing_name = $4,
       billing_address = NULLIF($5, ''), billing_phone = NULLIF($6, ''), billing_tax_id = NULLIF($7, ''), due_date = $8,
       subtotal = $9, discount = $10, tax = $11, total = $12, notes = NULLIF($13, ''), updated_at = NOW()
WHERE id::text = $1 AND status = 'draft'`,
		inv.ID, inv.CustomerID, inv.SaleID, inv.BillingName, inv.BillingAddr, inv.BillingPhone, inv.BillingTaxID,
		nullTime(inv.DueDate), inv.Subtotal, inv.Discount, inv.Tax, inv.Total, inv.Notes)
	if err != nil {
		return fmt.Errorf("invoicing: update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

func (r *txRepo) DeleteItems(ctx context.Context, invoiceID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id::text = $1`, invoiceID); err != nil {
		return fmt.Errorf("invoicing: delete items: %w", err)
	}
	return nil
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO invoice_items (invoice_id, line_no, product_id, description, quantity, unit_price, discount_percent,
                           tax_percent, discount_amount, tax_amount, line_total, credited_qty)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, 0)
RETURNING id::text`, it.InvoiceID, it.LineNo, it.ProductID, it.Description, it.Quantity, it.UnitPrice,
		it.DiscountPercent, it.TaxPercent, it.DiscountAmount, it.TaxAmount, it.LineTotal).Scan(&it.ID)
	if err != nil {
		return Item{}, fmt.Errorf("invoicing: insert item: %w", err)
	}
	return it, nil
}

func (r *txRepo) LockInvoice(ctx context.Context, id string) (Invoice, error) {
	return getInvoice(ctx, r.conn, `SELECT `+invoiceColumns+` FROM invoices WHERE id::text = $1 FOR UPDATE`, id)
}

func (r *txRepo) MarkIssued(ctx context.Context, id string, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE invoices SET status = 'issued', issue_date = $2, updated_at = NOW() WHERE id::text = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return fmt.Errorf("invoicing: issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

func (r *txRepo) SetStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.conn.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id::text = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("invoicing: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) DeleteDraft(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM invoices WHERE id::text = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("invoicing: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

// AddPaid raises paid_total, never past the open balance.
func (r *txRepo) AddPaid(ctx context.Context, id string, amount decimal.Decimal) (Invoice, error) {
	inv, err := scanInvoice(r.conn.QueryRow(ctx, `
UPDATE invoices SET paid_total = paid_total + $2, updated_at = NOW()
WHERE id::text = $1 AND status IN ('issued', 'partially_paid') AND paid_total + credited_total + $2 <= total
RETURNING `+invoiceColumns, id, amount))
	if db.IsNoRows(err) {
		return Invoice{}, ErrOverpayment
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: add paid: %w", err)
	}
	return inv, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO invoice_payments (invoice_id, amount, method, reference, paid_at, created_by)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, '')::uuid)
RETURNING id::text`, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt, p.CreatedBy).Scan(&p.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("invoicing: insert payment: %w", err)
	}
	return p, nil
}

// AddCredited raises credited_total, never past the open balance.
func (r *txRepo) AddCredited(ctx context.Context, id string, amount decimal.Decimal) (Invoice, error) {
	inv, err := scanInvoice(r.conn.QueryRow(ctx, `
UPDATE invoices SET credited_total = credited_total + $2, updated_at = NOW()
WHERE id::text = $1 AND paid_total + credited_total + $2 <= total
RETURNING `+invoiceColumns, id, amount))
	if db.IsNoRows(err) {
		return Invoice{}, ErrCreditExceeds
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: add credited: %w", err)
	}
	return inv, nil
}

func (r *txRepo) AddItemCredited(ctx context.Context, itemID string, qty decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE invoice_items SET credited_qty = credited_qty + $2
WHERE id::text = $1 AND credited_qty + $2 <= quantity`, itemID, qty)
	if err != nil {
		return fmt.Errorf("invoicing: credit item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditExceeds
	}
	return nil
}

func (r *txRepo) InsertCreditNote(ctx context.Context, cn CreditNote) (CreditNote, error) {
	created, err := scanCreditNote(r.conn.QueryRow(ctx, `
INSERT INTO credit_notes (number, invoice_id, reason, total, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid)
RETURNING `+creditNoteColumns, cn.Number, cn.InvoiceID, cn.Reason, cn.Total, cn.CreatedBy))
	if err != nil {
		return CreditNote{}, fmt.Errorf("invoicing: insert credit note: %w", err)
	}
	return created, nil
}

func (r *txRepo) InsertCreditNoteItem(ctx context.Context, it CreditNoteItem) (CreditNoteItem, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO credit_note_items (credit_note_id, invoice_item_id, quantity, amount)
VALUES ($1, $2, $3, $4)
RETURNING id::text`, it.CreditNoteID, it.InvoiceItemID, it.Quantity, it.Amount).Scan(&it.ID)
	if err != nil {
		return CreditNoteItem{}, fmt.Errorf("invoicing: insert credit note item: %w", err)
	}
	return it, nil
}
