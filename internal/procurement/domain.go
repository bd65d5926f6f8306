package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/sales"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusSubmitted         POStatus = "submitted"
	POStatusApproved          POStatus = "approved"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusReceived          POStatus = "received"
	POStatusCancelled         POStatus = "cancelled"
)

// Goods receipt statuses.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "draft"
	GRNStatusPosted    GRNStatus = "posted"
	GRNStatusCancelled GRNStatus = "cancelled"
)

// Vendor supplies stock.
type Vendor struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	ContactName  string    `json:"contact_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address,omitempty"`
	TaxID        string    `json:"tax_id,omitempty"`
	PaymentTerms int       `json:"payment_terms_days"`
	IsActive     bool      `json:"is_active"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VendorProduct links a vendor to a product it supplies.
type VendorProduct struct {
	ID           string          `json:"id"`
	VendorID     string          `json:"vendor_id"`
	ProductID    string          `json:"product_id"`
	VendorSKU    string          `json:"vendor_sku,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	LeadTimeDays int             `json:"lead_time_days"`
	IsPreferred  bool            `json:"is_preferred"`
}

// PurchaseOrder is an order placed with a vendor.
type PurchaseOrder struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	VendorID     string          `json:"vendor_id"`
	Status       POStatus        `json:"status"`
	ExpectedDate time.Time       `json:"expected_date"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []POItem        `json:"items,omitempty"`
}

// POItem is one ordered product.
type POItem struct {
	ID              string          `json:"id"`
	POID            string          `json:"purchase_order_id"`
	LineNo          int             `json:"line_no"`
	ProductID       string          `json:"product_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	ReceivedQty     decimal.Decimal `json:"received_qty"`
}

// Outstanding is the quantity still to be received.
func (i POItem) Outstanding() decimal.Decimal {
	return i.Quantity.Sub(i.ReceivedQty)
}

// GoodsReceipt records stock arriving against a purchase order.
type GoodsReceipt struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	POID       string     `json:"purchase_order_id"`
	VendorID   string     `json:"vendor_id"`
	LocationID string     `json:"location_id"`
	Status     GRNStatus  `json:"status"`
	ReceivedAt time.Time  `json:"received_at"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Items      []GRNItem  `json:"items,omitempty"`
}

// GRNItem is a received quantity of one PO item.
type GRNItem struct {
	ID        string          `json:"id"`
	GRNID     string          `json:"grn_id"`
	POItemID  string          `json:"po_item_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// VendorRequest creates a vendor.
type VendorRequest struct {
	Code         string `json:"code" validate:"required,max=30"`
	Name         string `json:"name" validate:"required,max=200"`
	ContactName  string `json:"contact_name" validate:"max=200"`
	Phone        string `json:"phone" validate:"max=30"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address" validate:"max=500"`
	TaxID        string `json:"tax_id" validate:"max=30"`
	PaymentTerms int    `json:"payment_terms_days" validate:"min=0,max=365"`
	Notes        string `json:"notes" validate:"max=1000"`
}

// VendorPatch updates a vendor. Nil fields are left unchanged.
type VendorPatch struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=200"`
	ContactName  *string `json:"contact_name" validate:"omitempty,max=200"`
	Phone        *string `json:"phone" validate:"omitempty,max=30"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Address      *string `json:"address" validate:"omitempty,max=500"`
	TaxID        *string `json:"tax_id" validate:"omitempty,max=30"`
	PaymentTerms *int    `json:"payment_terms_days" validate:"omitempty,min=0,max=365"`
	IsActive     *bool   `json:"is_active"`
	Notes        *string `json:"notes" validate:"omitempty,max=1000"`
}

// VendorProductRequest links a product to a vendor.
type VendorProductRequest struct {
	ProductID    string          `json:"product_id" validate:"required"`
	VendorSKU    string          `json:"vendor_sku" validate:"max=60"`
	Cost         decimal.Decimal `json:"cost"`
	LeadTimeDays int             `json:"lead_time_days" validate:"min=0,max=365"`
	IsPreferred  bool            `json:"is_preferred"`
}

// POLineRequest is one line of a purchase order.
type POLineRequest struct {
	ProductID       string          `json:"product_id" validate:"required"`
	Description     string          `json:"description" validate:"max=255"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

// PORequest creates or replaces a draft purchase order.
type PORequest struct {
	VendorID     string               `json:"vendor_id" validate:"required"`
	ExpectedDate time.Time            `json:"expected_date"`
	Notes        string               `json:"notes" validate:"max=1000"`
	Lines        []POLineRequest      `json:"lines" validate:"required,min=1,dive"`
	Totals       *sales.ClaimedTotals `json:"totals,omitempty"`
}

// GRNLineRequest receives qty of one PO item. UnitCost defaults to the
// ordered cost.
type GRNLineRequest struct {
	POItemID string           `json:"po_item_id" validate:"required"`
	Quantity decimal.Decimal  `json:"quantity"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
}

// GRNRequest drafts a goods receipt.
type GRNRequest struct {
	LocationID string           `json:"location_id"`
	ReceivedAt time.Time        `json:"received_at"`
	Notes      string           `json:"notes" validate:"max=1000"`
	Lines      []GRNLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// VendorFilters filters vendor listings.
type VendorFilters struct {
	Search string
	Active *bool
	Limit  int
	Offset int
}

// POFilters filters purchase order listings.
type POFilters struct {
	VendorID string
	Status   POStatus
	Search   string
	Limit    int
	Offset   int
}

var (
	ErrNotFound        = fmt.Errorf("procurement: %w", httpx.ErrNotFound)
	ErrVendorNotFound  = fmt.Errorf("procurement: vendor %w", httpx.ErrNotFound)
	ErrPONotFound      = fmt.Errorf("procurement: purchase order %w", httpx.ErrNotFound)
	ErrGRNNotFound     = fmt.Errorf("procurement: goods receipt %w", httpx.ErrNotFound)
	ErrValidation      = fmt.Errorf("procurement: %w", httpx.ErrValidation)
	ErrDuplicateVendor = fmt.Errorf("procurement: vendor code already exists: %w", httpx.ErrDuplicate)
	ErrVendorInactive  = fmt.Errorf("procurement: vendor is inactive: %w", httpx.ErrValidation)
	ErrInvalidState    = fmt.Errorf("procurement: invalid state transition: %w", httpx.ErrConflict)
	ErrOverReceipt     = fmt.Errorf("procurement: received quantity exceeds ordered: %w", httpx.ErrConflict)
	ErrAlreadyPosted   = fmt.Errorf("procurement: goods receipt already posted: %w", httpx.ErrDuplicate)
)
