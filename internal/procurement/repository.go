package procurement

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
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const vendorColumns = `id::text, code, name, COALESCE(contact_name, ''), COALESCE(phone, ''), COALESCE(email, ''),
COALESCE(address, ''), COALESCE(tax_id, ''), payment_terms_days, is_active, COALESCE(notes, ''), created_at, updated_at`

const poColumns = `id::text, number, vendor_id::text, status, COALESCE(expected_date, 'epoch'::timestamptz), subtotal, discount,
tax, total, COALESCE(notes, ''), COALESCE(approved_by::text, ''), approved_at, COALESCE(created_by::text, ''), created_at, updated_at`

const poItemColumns = `id::text, purchase_order_id::text, line_no, product_id::text, COALESCE(description, ''), quantity,
unit_cost, discount_percent, tax_percent, tax_amount, line_total, received_qty`

const grnColumns = `id::text, number, purchase_order_id::text, vendor_id::text, location_id, status, received_at, posted_at,
COALESCE(notes, ''), COALESCE(created_by::text, ''), created_at`

// TxRepository exposes transactional purchase order and receipt statements.
type TxRepository interface {
	VendorActive(ctx context.Context, vendorID string) (bool, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	UpdatePODraft(ctx context.Context, po PurchaseOrder) error
	DeletePOItems(ctx context.Context, poID string) error
	InsertPOItem(ctx context.Context, it POItem) (POItem, error)
	LockPO(ctx context.Context, id string) (PurchaseOrder, error)
	SetPOStatus(ctx context.Context, id string, status POStatus) error
	SetPOApproval(ctx context.Context, id, approvedBy string, approvedAt time.Time) error
	DeletePODraft(ctx context.Context, id string) error
	AddReceived(ctx context.Context, poItemID string, qty decimal.Decimal) error
	InsertGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error)
	InsertGRNItem(ctx context.Context, it GRNItem) (GRNItem, error)
	LockGRN(ctx context.Context, id string) (GoodsReceipt, error)
	MarkGRNPosted(ctx context.Context, id string, at time.Time) error
	SetGRNStatus(ctx context.Context, id string, status GRNStatus) error
}

// Sequencer hands out document numbers.
type Sequencer interface {
	Next(ctx context.Context, name string) (string, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// TxScope groups the repositories a receipt posting touches.
type TxScope struct {
	Orders    TxRepository
	Inventory inventory.TxRepository
	Numbers   Sequencer
	Activity  ActivityRecorder
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
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

// WithTx wraps fn in one transaction shared with inventory.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxScope{
			Orders:    &txRepo{conn: tx},
			Inventory: inventory.NewTxRepository(tx),
			Numbers:   txSequencer{conn: tx},
			Activity:  shared.NewActivityLogger(tx),
		})
	})
}

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Code, &v.Name, &v.ContactName, &v.Phone, &v.Email, &v.Address, &v.TaxID,
		&v.PaymentTerms, &v.IsActive, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// ListVendors returns a filtered page of vendors.
func (r *Repository) ListVendors(ctx context.Context, f VendorFilters) ([]Vendor, int, error) {
	conds := []string{"1=1"}
	var args []any
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(code ILIKE $%[1]d OR name ILIKE $%[1]d OR phone ILIKE $%[1]d)", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("procurement: count vendors: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE `+where+
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("procurement: list vendors: %w", err)
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// GetVendor loads one vendor.
func (r *Repository) GetVendor(ctx context.Context, id string) (Vendor, error) {
	v, err := scanVendor(r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id::text = $1`, id))
	if db.IsNoRows(err) {
		return Vendor{}, ErrVendorNotFound
	}
	if err != nil {
		return Vendor{}, fmt.Errorf("procurement: get vendor: %w", err)
	}
	return v, nil
}

// CreateVendor inserts a vendor.
func (r *Repository) CreateVendor(ctx context.Context, v Vendor) (Vendor, error) {
	created, err := scanVendor(r.pool.QueryRow(ctx, `
INSERT INTO vendors (code, name, contact_name, phone, email, address, tax_id, payment_terms_days, is_active, notes)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, TRUE, NULLIF($9, ''))
RETURNING `+vendorColumns, v.Code, v.Name, v.ContactName, v.Phone, v.Email, v.Address, v.TaxID, v.PaymentTerms, v.Notes))
	if db.IsUniqueViolation(err) {
		return Vendor{}, ErrDuplicateVendor
	}
	if err != nil {
		return Vendor{}, fmt.Errorf("procurement: create vendor: %w", err)
	}
	return created, nil
}

// UpdateVendor applies a patch. Nil fields keep their value.
func (r *Repository) UpdateVendor(ctx context.Context, id string, p VendorPatch) (Vendor, error) {
	v, err := scanVendor(r.pool.QueryRow(ctx, `
UPDATE vendors SET
    name = COALESCE($2, name),
    contact_name = COALESCE($3, contact_name),
    phone = COALESCE($4, phone),
    email = COALESCE($5, email),
    address = COALESCE($6, address),
    tax_id = COALESCE($7, tax_id),
    payment_terms_days = COALESCE($8, payment_terms_days),
    is_active = COALESCE($9, is_active),
    notes = COALESCE($10, notes),
    updated_at = NOW()
WHERE id::text = $1
RETURNING `+vendorColumns, id, p.Name, p.ContactName, p.Phone, p.Email, p.Address, p.TaxID, p.PaymentTerms, p.IsActive, p.Notes))
	if db.IsNoRows(err) {
		return Vendor{}, ErrVendorNotFound
	}
	if err != nil {
		return Vendor{}, fmt.Errorf("procurement: update vendor: %w", err)
	}
	return v, nil
}

// ListVendorProducts lists what a vendor supplies.
func (r *Repository) ListVendorProducts(ctx context.Context, vendorID string) ([]VendorProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, vendor_id::text, product_id::text, COALESCE(vendor_sku, ''), cost,
lead_time_days, is_preferred FROM vendor_products WHERE vendor_id::text = $1 ORDER BY is_preferred DESC, vendor_sku`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("procurement: list vendor products: %w", err)
	}
	defer rows.Close()
	var out []VendorProduct
	for rows.Next() {
		var vp VendorProduct
		if err := rows.Scan(&vp.ID, &vp.VendorID, &vp.ProductID, &vp.VendorSKU, &vp.Cost, &vp.LeadTimeDays, &vp.IsPreferred); err != nil {
			return nil, err
		}
		out = append(out, vp)
	}
	return out, rows.Err()
}

// UpsertVendorProduct links or relinks a product to a vendor.
func (r *Repository) UpsertVendorProduct(ctx context.Context, vp VendorProduct) (VendorProduct, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO vendor_products (vendor_id, product_id, vendor_sku, cost, lead_time_days, is_preferred)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
ON CONFLICT (vendor_id, product_id) DO UPDATE
SET vendor_sku = EXCLUDED.vendor_sku, cost = EXCLUDED.cost, lead_time_days = EXCLUDED.lead_time_days,
    is_preferred = EXCLUDED.is_preferred
RETURNING id::text`, vp.VendorID, vp.ProductID, vp.VendorSKU, vp.Cost, vp.LeadTimeDays, vp.IsPreferred).Scan(&vp.ID)
	if err != nil {
		return VendorProduct{}, fmt.Errorf("procurement: upsert vendor product: %w", err)
	}
	return vp, nil
}

// DeleteVendorProduct unlinks a product from a vendor.
func (r *Repository) DeleteVendorProduct(ctx context.Context, vendorID, productID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vendor_products WHERE vendor_id::text = $1 AND product_id::text = $2`, vendorID, productID)
	if err != nil {
		return fmt.Errorf("procurement: delete vendor product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &status, &po.ExpectedDate, &po.Subtotal, &po.Discount, &po.Tax,
		&po.Total, &po.Notes, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.Status = POStatus(status)
	if po.ExpectedDate.Unix() == 0 {
		po.ExpectedDate = time.Time{}
	}
	return po, err
}

func loadPOItems(ctx context.Context, conn db.DBTX, poID string) ([]POItem, error) {
	rows, err := conn.Query(ctx, `SELECT `+poItemColumns+` FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY line_no`, poID)
	if err != nil {
		return nil, fmt.Errorf("procurement: load po items: %w", err)
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var it POItem
		if err := rows.Scan(&it.ID, &it.POID, &it.LineNo, &it.ProductID, &it.Description, &it.Quantity, &it.UnitCost,
			&it.DiscountPercent, &it.TaxPercent, &it.TaxAmount, &it.LineTotal, &it.ReceivedQty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getPO(ctx context.Context, conn db.DBTX, query string, id string) (PurchaseOrder, error) {
	po, err := scanPO(conn.QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return PurchaseOrder{}, ErrPONotFound
	}
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: get po: %w", err)
	}
	if po.Items, err = loadPOItems(ctx, conn, po.ID); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// GetPO returns a purchase order with its items.
func (r *Repository) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, `SELECT `+poColumns+` FROM purchase_orders WHERE id::text = $1`, id)
}

// ListPOs returns a filtered page of purchase orders without items.
func (r *Repository) ListPOs(ctx context.Context, f POFilters) ([]PurchaseOrder, int, error) {
	conds := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.VendorID != "" {
		add("vendor_id::text = $%d", f.VendorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Search != "" {
		add("number ILIKE $%d", "%"+f.Search+"%")
	}
	where := strings.Join(conds, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("procurement: count pos: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("procurement: list pos: %w", err)
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

func scanGRN(row pgx.Row) (GoodsReceipt, error) {
	var g GoodsReceipt
	var status string
	err := row.Scan(&g.ID, &g.Number, &g.POID, &g.VendorID, &g.LocationID, &status, &g.ReceivedAt, &g.PostedAt,
		&g.Notes, &g.CreatedBy, &g.CreatedAt)
	g.Status = GRNStatus(status)
	return g, err
}

func getGRN(ctx context.Context, conn db.DBTX, query, id string) (GoodsReceipt, error) {
	g, err := scanGRN(conn.QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return GoodsReceipt{}, ErrGRNNotFound
	}
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("procurement: get grn: %w", err)
	}
	rows, err := conn.Query(ctx, `SELECT id::text, grn_id::text, po_item_id::text, product_id::text, quantity, unit_cost
FROM grn_items WHERE grn_id = $1 ORDER BY id`, g.ID)
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("procurement: grn items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it GRNItem
		if err := rows.Scan(&it.ID, &it.GRNID, &it.POItemID, &it.ProductID, &it.Quantity, &it.UnitCost); err != nil {
			return GoodsReceipt{}, err
		}
		g.Items = append(g.Items, it)
	}
	return g, rows.Err()
}

// GetGRN returns a goods receipt with its items.
func (r *Repository) GetGRN(ctx context.Context, id string) (GoodsReceipt, error) {
	return getGRN(ctx, r.pool, `SELECT `+grnColumns+` FROM goods_received_notes WHERE id::text = $1`, id)
}

// ListGRNs returns the receipts of a purchase order.
func (r *Repository) ListGRNs(ctx context.Context, poID string) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grnColumns+` FROM goods_received_notes WHERE purchase_order_id::text = $1
ORDER BY created_at`, poID)
	if err != nil {
		return nil, fmt.Errorf("procurement: list grns: %w", err)
	}
	defer rows.Close()
	var out []GoodsReceipt
	for rows.Next() {
		g, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (tx *txRepo) VendorActive(ctx context.Context, vendorID string) (bool, error) {
	var active bool
	err := tx.conn.QueryRow(ctx, `SELECT is_active FROM vendors WHERE id::text = $1`, vendorID).Scan(&active)
	if db.IsNoRows(err) {
		return false, ErrVendorNotFound
	}
	if err != nil {
		return false, fmt.Errorf("procurement: vendor lookup: %w", err)
	}
	return active, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (tx *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	created, err := scanPO(tx.conn.QueryRow(ctx, `
INSERT INTO purchase_orders (number, vendor_id, status, expected_date, subtotal, discount, tax, total, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, '')::uuid)
RETURNING `+poColumns, po.Number, po.VendorID, string(po.Status), nullTime(po.ExpectedDate), po.Subtotal, po.Discount,
		po.Tax, po.Total, po.Notes, po.CreatedBy))
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: insert po: %w", err)
	}
	return created, nil
}

func (tx *txRepo) UpdatePODraft(ctx context.Context, po PurchaseOrder) error {
	tag, err := tx.conn.Exec(ctx, `
UPDATE purchase_orders SET vendor_id = $2, expected_date = $3, subtotal = $4, discount = $5, tax = $6, total = $7,
       notes = NULLIF($8, ''), updated_at = NOW()
WHERE id::text = $1 AND status = 'draft'`, po.ID, po.VendorID, nullTime(po.ExpectedDate), po.Subtotal, po.Discount,
		po.Tax, po.Total, po.Notes)
	if err != nil {
		return fmt.Errorf("procurement: update po: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (tx *txRepo) DeletePOItems(ctx context.Context, poID string) error {
	if _, err := tx.conn.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id::text = $1`, poID); err != nil {
		return fmt.Errorf("procurement: delete po items: %w", err)
	}
	return nil
}

func (tx *txRepo) InsertPOItem(ctx context.Context, it POItem) (POItem, error) {
	err := tx.conn.QueryRow(ctx, `
INSERT INTO purchase_order_items (purchase_order_id, line_no, product_id, description, quantity, unit_cost,
                                  discount_percent, tax_percent, tax_amount, line_total, received_qty)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, 0)
RETURNING id::text`, it.POID, it.LineNo, it.ProductID, it.Description, it.Quantity, it.UnitCost, it.DiscountPercent,
		it.TaxPercent, it.TaxAmount, it.LineTotal).Scan(&it.ID)
	if err != nil {
		return POItem{}, fmt.Errorf("procurement: insert po item: %w", err)
	}
	return it, nil
}

func (tx *txRepo) LockPO(ctx context.Context, id string) (PurchaseOrder, error) {
	return getPO(ctx, tx.conn, `SELECT `+poColumns+` FROM purchase_orders WHERE id::text = $1 FOR UPDATE`, id)
}

func (tx *txRepo) SetPOStatus(ctx context.Context, id string, status POStatus) error {
	tag, err := tx.conn.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id::text = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("procurement: set po status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (tx *txRepo) SetPOApproval(ctx context.Context, id, approvedBy string, approvedAt time.Time) error {
	_, err := tx.conn.Exec(ctx, `UPDATE purchase_orders SET approved_by = NULLIF($2, '')::uuid, approved_at = $3, updated_at = NOW()
WHERE id::text = $1`, id, approvedBy, approvedAt)
	if err != nil {
		return fmt.Errorf("procurement: set po approval: %w", err)
	}
	return nil
}

func (tx *txRepo) DeletePODraft(ctx context.Context, id string) error {
	tag, err := tx.conn.Exec(ctx, `DELETE FROM purchase_orders WHERE id::text = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("procurement: delete po: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// AddReceived raises an item's received quantity, never past what was ordered.
func (tx *txRepo) AddReceived(ctx context.Context, poItemID string, qty decimal.Decimal) error {
	tag, err := tx.conn.Exec(ctx, `
UPDATE purchase_order_items SET received_qty = received_qty + $2
WHERE id::text = $1 AND received_qty + $2 <= quantity`, poItemID, qty)
	if err != nil {
		return fmt.Errorf("procurement: add received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverReceipt
	}
	return nil
}

func (tx *txRepo) InsertGRN(ctx context.Context, g GoodsReceipt) (GoodsReceipt, error) {
	created, err := scanGRN(tx.conn.QueryRow(ctx, `
INSERT INTO goods_received_notes (number, purchase_order_id, vendor_id, location_id, status, received_at, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, '')::uuid)
RETURNING `+grnColumns, g.Number, g.POID, g.VendorID, g.LocationID, string(g.Status), g.ReceivedAt, g.Notes, g.CreatedBy))
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("procurement: insert grn: %w", err)
	}
	return created, nil
}

func (tx *txRepo) InsertGRNItem(ctx context.Context, it GRNItem) (GRNItem, error) {
	err := tx.conn.QueryRow(ctx, `
INSERT INTO grn_items (grn_id, po_item_id, product_id, quantity, unit_cost)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text`, it.GRNID, it.POItemID, it.ProductID, it.Quantity, it.UnitCost).Scan(&it.ID)
	if err != nil {
		return GRNItem{}, fmt.Errorf("procurement: insert grn item: %w", err)
	}
	return it, nil
}

func (tx *txRepo) LockGRN(ctx context.Context, id string) (GoodsReceipt, error) {
	return getGRN(ctx, tx.conn, `SELECT `+grnColumns+` FROM goods_received_notes WHERE id::text = $1 FOR UPDATE`, id)
}

func (tx *txRepo) MarkGRNPosted(ctx context.Context, id string, at time.Time) error {
	tag, err := tx.conn.Exec(ctx, `UPDATE goods_received_notes SET status = 'posted', posted_at = $2
WHERE id::text = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return fmt.Errorf("procurement: post grn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

func (tx *txRepo) SetGRNStatus(ctx context.Context, id string, status GRNStatus) error {
	tag, err := tx.conn.Exec(ctx, `UPDATE goods_received_notes SET status = $2 WHERE id::text = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("procurement: set grn status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGRNNotFound
	}
	return nil
}
