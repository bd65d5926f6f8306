package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusPartiallyReturned Status = "partially_returned"
	StatusReturned          Status = "returned"
	StatusCancelled         Status = "cancelled"
	StatusVoid              Status = "void"
)

// Source tells where a sale was captured.
type Source string

const (
	SourcePOS     Source = "pos"
	SourceWebhook Source = "webhook"
)

// Payment methods accepted at the counter.
const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentUPI          = "upi"
	PaymentBankTransfer = "bank_transfer"
	PaymentOnline       = "online"
)

// Sale is a completed retail sale with its lines.
type Sale struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	Source          Source          `json:"source"`
	ShiftID         string          `json:"shift_id,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	RefundedTotal   decimal.Decimal `json:"refunded_total"`
	PointsEarned    int64           `json:"points_earned"`
	ExternalOrderID string          `json:"external_order_id,omitempty"`
	ExternalStatus  string          `json:"external_status,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []Item          `json:"items,omitempty"`
}

// Item is one sale line. CostPrice is the moving average cost at sale time.
type Item struct {
	ID              string          `json:"id"`
	SaleID          string          `json:"sale_id"`
	LineNo          int             `json:"line_no"`
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	ReturnedQty     decimal.Decimal `json:"returned_qty"`
}

// Return is a credit note raised against a sale.
type Return struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	SaleID    string          `json:"sale_id"`
	ShiftID   string          `json:"shift_id,omitempty"`
	Reason    string          `json:"reason"`
	Refund    decimal.Decimal `json:"refund"`
	Points    int64           `json:"points_reversed"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []ReturnItem    `json:"items,omitempty"`
}

// ReturnItem is a returned quantity of one sale line.
type ReturnItem struct {
	ID         string          `json:"id"`
	ReturnID   string          `json:"return_id"`
	SaleItemID string          `json:"sale_item_id"`
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
}

// ProductRef is the catalog data a sale line snapshots.
type ProductRef struct {
	ID       string
	SKU      string
	Name     string
	Price    decimal.Decimal
	TaxRate  decimal.Decimal
	IsActive bool
}

// LineRequest is one line of a new sale.
type LineRequest struct {
	ProductID       string           `json:"product_id" validate:"required"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxPercent      *decimal.Decimal `json:"tax_percent,omitempty"`
}

// CreateSaleRequest posts a counter sale. Prices default to the catalog.
type CreateSaleRequest struct {
	ShiftID       string         `json:"shift_id" validate:"required"`
	CustomerID    string         `json:"customer_id"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=cash card upi bank_transfer online"`
	LocationID    string         `json:"location_id"`
	Lines         []LineRequest  `json:"lines" validate:"required,min=1,dive"`
	Totals        *ClaimedTotals `json:"totals,omitempty"`
	Notes         string         `json:"notes" validate:"max=1000"`
}

// UpdateSaleRequest patches the free-form fields of a posted sale. Nil fields
// are left alone and an empty CustomerID detaches the customer.
type UpdateSaleRequest struct {
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
	CustomerID *string `json:"customer_id,omitempty"`
}

// ExternalOrderLine is a line of an order pushed by a storefront.
type ExternalOrderLine struct {
	SKU        string           `json:"sku" validate:"required"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TaxPercent *decimal.Decimal `json:"tax_percent,omitempty"`
}

// ExternalOrder is the storefront order upserted by the order webhook.
type ExternalOrder struct {
	ExternalOrderID string              `json:"external_order_id" validate:"required,max=100"`
	Status          string              `json:"status" validate:"max=50"`
	CustomerID      string              `json:"customer_id"`
	PaymentMethod   string              `json:"payment_method"`
	Lines           []ExternalOrderLine `json:"lines" validate:"dive"`
	Notes           string              `json:"notes" validate:"max=1000"`
}

// ReturnLine returns qty of one sale item.
type ReturnLine struct {
	SaleItemID string          `json:"sale_item_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// ReturnRequest raises a credit note. A shift pays the refund out of that
// drawer.
type ReturnRequest struct {
	ShiftID    string       `json:"shift_id"`
	LocationID string       `json:"location_id"`
	Reason     string       `json:"reason" validate:"required,max=500"`
	Lines      []ReturnLine `json:"lines" validate:"required,min=1,dive"`
}

// ListFilters filters sale listings.
type ListFilters struct {
	From       time.Time
	To         time.Time
	CustomerID string
	ShiftID    string
	Status     Status
	Search     string
	Limit      int
	Offset     int
}

var (
	ErrNotFound           = fmt.Errorf("sales: sale %w", httpx.ErrNotFound)
	ErrReturnNotFound     = fmt.Errorf("sales: return %w", httpx.ErrNotFound)
	ErrInvalidInput       = fmt.Errorf("sales: %w", httpx.ErrValidation)
	ErrInvalidLine        = fmt.Errorf("sales: invalid line: %w", httpx.ErrValidation)
	ErrTotalsMismatch     = fmt.Errorf("sales: totals mismatch: %w", httpx.ErrValidation)
	ErrProductUnavailable = fmt.Errorf("sales: product unavailable: %w", httpx.ErrValidation)
	ErrReturnExceedsSold  = fmt.Errorf("sales: return exceeds sold quantity: %w", httpx.ErrConflict)
	ErrInvalidStatus      = fmt.Errorf("sales: invalid status: %w", httpx.ErrConflict)
	ErrDuplicateOrder     = fmt.Errorf("sales: external order already recorded: %w", httpx.ErrDuplicate)
	ErrCustomerLocked     = fmt.Errorf("sales: customer cannot change after points were earned: %w", httpx.ErrConflict)
)

// ErrDuplicateRequest reports a replayed Idempotency-Key.
var ErrDuplicateRequest = fmt.Errorf("sales: request already processed: %w", httpx.ErrDuplicate)
