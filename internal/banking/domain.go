package banking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// Direction is the sign of a ledger entry.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Account is a bank or wallet account the store settles money through.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	BankName       string          `json:"bank_name,omitempty"`
	AccountNumber  string          `json:"account_number,omitempty"`
	IFSC           string          `json:"ifsc,omitempty"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transaction is one ledger line. Balance is the account balance right
// after the entry was applied.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	RefModule   string          `json:"ref_module,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	TxnDate     time.Time       `json:"txn_date"`
	Reconciled  bool            `json:"reconciled"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the amount as a balance delta.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Expense is a store expense, optionally paid from a bank account.
type Expense struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	CategoryID    string          `json:"category_id"`
	AccountID     string          `json:"account_id,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Payee         string          `json:"payee,omitempty"`
	ExpenseDate   time.Time       `json:"expense_date"`
	Description   string          `json:"description,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AccountInput struct {
	Name           string          `json:"name" validate:"required,max=120"`
	BankName       string          `json:"bank_name" validate:"max=120"`
	AccountNumber  string          `json:"account_number" validate:"max=34"`
	IFSC           string          `json:"ifsc" validate:"omitempty,len=11,alphanum"`
	Currency       string          `json:"currency" validate:"omitempty,len=3,alpha"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type AccountPatch struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	BankName      *string `json:"bank_name" validate:"omitempty,max=120"`
	AccountNumber *string `json:"account_number" validate:"omitempty,max=34"`
	IFSC          *string `json:"ifsc" validate:"omitempty,len=11,alphanum"`
	IsActive      *bool   `json:"is_active"`
}

// TransactionInput is a manual deposit or withdrawal.
type TransactionInput struct {
	Direction   Direction       `json:"direction" validate:"required,oneof=credit debit"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference" validate:"max=100"`
	Description string          `json:"description" validate:"max=500"`
	TxnDate     time.Time       `json:"txn_date"`
}

type TransferInput struct {
	FromAccountID string          `json:"from_account_id" validate:"required"`
	ToAccountID   string          `json:"to_account_id" validate:"required,nefield=FromAccountID"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference" validate:"max=100"`
	TxnDate       time.Time       `json:"txn_date"`
}

type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=300"`
}

type ExpenseInput struct {
	CategoryID    string          `json:"category_id" validate:"required"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cash card upi bank_transfer cheque"`
	Payee         string          `json:"payee" validate:"max=200"`
	ExpenseDate   time.Time       `json:"expense_date"`
	Description   string          `json:"description" validate:"max=500"`
}

type TransactionFilters struct {
	AccountID  string
	From       time.Time
	To         time.Time
	Reconciled *bool
	Limit      int
	Offset     int
}

type ExpenseFilters struct {
	CategoryID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// CategoryTotal is one row of the expense summary.
type CategoryTotal struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

var (
	ErrAccountNotFound     = fmt.Errorf("banking: account %w", httpx.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("banking: transaction %w", httpx.ErrNotFound)
	ErrCategoryNotFound    = fmt.Errorf("banking: expense category %w", httpx.ErrNotFound)
	ErrExpenseNotFound     = fmt.Errorf("banking: expense %w", httpx.ErrNotFound)
	ErrInvalidInput        = fmt.Errorf("banking: %w", httpx.ErrValidation)
	ErrAccountInactive     = fmt.Errorf("banking: account is inactive: %w", httpx.ErrConflict)
	ErrInsufficientFunds   = fmt.Errorf("banking: insufficient balance: %w", httpx.ErrConflict)
	ErrDuplicateCategory   = fmt.Errorf("banking: category name already exists: %w", httpx.ErrDuplicate)
	ErrCategoryInUse       = fmt.Errorf("banking: category has expenses: %w", httpx.ErrConflict)
	ErrReconciled          = fmt.Errorf("banking: reconciled entries cannot be reversed: %w", httpx.ErrConflict)
)
