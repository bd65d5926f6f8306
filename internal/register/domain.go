package register

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// ShiftStatus is the lifecycle state of a register shift.
type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "open"
	ShiftClosed ShiftStatus = "closed"
)

// OperationType classifies cash drawer operations.
type OperationType string

const (
	OpSale    OperationType = "sale"
	OpRefund  OperationType = "refund"
	OpCashIn  OperationType = "cash_in"
	OpCashOut OperationType = "cash_out"
)

// Variance classes reported on close.
const (
	VarianceNormal   = "normal"
	VarianceWarning  = "warning"
	VarianceCritical = "critical"
)

// Shift is a cash register session from opening float to count.
type Shift struct {
	ID            string           `json:"id"`
	Register      string           `json:"register"`
	Status        ShiftStatus      `json:"status"`
	OpenedBy      string           `json:"opened_by"`
	OpeningFloat  decimal.Decimal  `json:"opening_float"`
	ExpectedCash  decimal.Decimal  `json:"expected_cash"`
	CountedCash   *decimal.Decimal `json:"counted_cash,omitempty"`
	Variance      *decimal.Decimal `json:"variance,omitempty"`
	VarianceClass string           `json:"variance_class,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	OpenedAt      time.Time        `json:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	ClosedBy      string           `json:"closed_by,omitempty"`
}

// Operation is an immutable cash drawer entry. Amount is signed.
type Operation struct {
	ID        string          `json:"id"`
	ShiftID   string          `json:"shift_id"`
	Type      OperationType   `json:"type"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	RefID     string          `json:"ref_id,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpenInput opens a shift.
type OpenInput struct {
	Register     string          `json:"register" validate:"required,max=32"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	Notes        string          `json:"notes" validate:"max=500"`
}

// CashInput is a manual cash in or out.
type CashInput struct {
	Type   OperationType   `json:"type" validate:"required,oneof=cash_in cash_out"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=200"`
}

// CloseInput is the blind count submitted at close.
type CloseInput struct {
	CountedCash decimal.Decimal `json:"counted_cash"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// ShiftReport summarises a shift's drawer by operation type and method.
type ShiftReport struct {
	Shift    Shift                             `json:"shift"`
	ByType   map[OperationType]decimal.Decimal `json:"by_type"`
	ByMethod map[string]decimal.Decimal        `json:"by_method"`
	Count    int                               `json:"operations"`
}

var (
	ErrNotFound         = fmt.Errorf("register: shift not found: %w", httpx.ErrNotFound)
	ErrShiftClosed      = fmt.Errorf("register: no open shift: %w", httpx.ErrConflict)
	ErrShiftAlreadyOpen = fmt.Errorf("register: a shift is already open on this register: %w", httpx.ErrConflict)
	ErrInsufficientCash = fmt.Errorf("register: drawer does not hold that much cash: %w", httpx.ErrConflict)
	ErrInvalidInput     = fmt.Errorf("register: %w", httpx.ErrValidation)
	ErrNotesRequired    = fmt.Errorf("register: critical variance requires notes: %w", httpx.ErrValidation)
)
