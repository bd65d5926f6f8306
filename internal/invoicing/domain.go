package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/sales"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusIssued        Status = "issued"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusVoid          Status = "void"
)

// Invoice is a customer invoice. Customer fields are snapshotted so the
// printed document never changes after issue.
type Invoice struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Status        Status          `json:"status"`
	CustomerID    string          `json:"customer_id,omitempty"`
	SaleID        string          `json:"sale_id,omitempty"`
	BillingName   string          `json:"billing_name"`
	BillingAddr   string          `json:"billing_address,omitempty"`
	BillingPhone  string          `json:"billing_phone,omitempty"`
	BillingTaxID  string          `json:"billing_tax_id,omitempty"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaidTotal     decimal.Decimal `json:"paid_total"`
	CreditedTotal decimal.Decimal `json:"credited_total"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items,omitempty"`
}

// Balance is what the customer still owes.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.PaidTotal).Sub(i.CreditedTotal)
}

// Item is one invoice line.
type Item struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoice_id"`
	LineNo          int             `json:"line_no"`
	ProductID       string          `json:"product_id,omitempty"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	CreditedQty     decimal.Decimal `json:"credited_qty"`
}

// Payment is money received against an invoice.
type Payment struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedBy string          `json:"created_by,omitempty"`
}

// CreditNote reduces what an invoice is owed for.
type CreditNote struct {
	ID        string           `json:"id"`
	Number    string           `json:"number"`
	InvoiceID string           `json:"invoice_id"`
	Reason    string           `json:"reason"`
	Total     decimal.Decimal  `json:"total"`
	CreatedBy string           `json:"created_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Items     []CreditNoteItem `json:"items,omitempty"`
}

// CreditNoteItem credits a quantity of one invoice line.
type CreditNoteItem struct {
	ID            string          `json:"id"`
	CreditNoteID  string          `json:"credit_note_id"`
	InvoiceItemID string          `json:"invoice_item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
}

// LineRequest is one line of a draft invoice.
type LineRequest struct {
	ProductID       string          `json:"product_id"`
	Description     string          `json:"description" validate:"required,max=255"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

// InvoiceRequest creates a draft or replaces a draft's content.
type InvoiceRequest struct {
	CustomerID   string               `json:"customer_id"`
	SaleID       string               `json:"sale_id"`
	BillingName  string               `json:"billing_name" validate:"required,max=200"`
	BillingAddr  string               `json:"billing_address" validate:"max=500"`
	BillingPhone string               `json:"billing_phone" validate:"max=30"`
	BillingTaxID string               `json:"billing_tax_id" validate:"max=30"`
	DueDate      time.Time            `json:"due_date"`
	Notes        string               `json:"notes" validate:"max=1000"`
	Lines        []LineRequest        `json:"lines" validate:"required,min=1,dive"`
	Totals       *sales.ClaimedTotals `json:"totals,omitempty"`
}

// PaymentRequest records a payment.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=cash card upi bank_transfer online cheque"`
	Reference string          `json:"reference" validate:"max=100"`
	PaidAt    time.Time       `json:"paid_at"`
}

// CreditLine credits qty of one invoice item.
type CreditLine struct {
	InvoiceItemID string          `json:"invoice_item_id" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// CreditNoteRequest raises a credit note.
type CreditNoteRequest struct {
	Reason string       `json:"reason" validate:"required,max=500"`
	Lines  []CreditLine `json:"lines" validate:"required,min=1,dive"`
}

// ListFilters filters invoice listings.
type ListFilters struct {
	Status     Status
	CustomerID string
	Search     string
	Overdue    bool
	Limit      int
	Offset     int
}

var (
	ErrNotFound           = fmt.Errorf("invoicing: invoice %w", httpx.ErrNotFound)
	ErrCreditNoteNotFound = fmt.Errorf("invoicing: credit note %w", httpx.ErrNotFound)
	ErrInvalidInput       = fmt.Errorf("invoicing: %w", httpx.ErrValidation)
	ErrNotDraft           = fmt.Errorf("invoicing: invoice is not a draft: %w", httpx.ErrConflict)
	ErrInvalidStatus      = fmt.Errorf("invoicing: invalid status: %w", httpx.ErrConflict)
	ErrOverpayment        = fmt.Errorf("invoicing: payment exceeds balance: %w", httpx.ErrConflict)
	ErrCreditExceeds      = fmt.Errorf("invoicing: credit exceeds invoiced amount: %w", httpx.ErrConflict)
	ErrHasPayments        = fmt.Errorf("invoicing: invoice has payments: %w", httpx.ErrConflict)
)

// ErrRendererUnavailable reports that PDFs cannot be produced right now.
var ErrRendererUnavailable = fmt.Errorf("invoicing: pdf renderer %w", httpx.ErrUnavailable)
