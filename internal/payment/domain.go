package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// State is a payment session state.
type State string

const (
	StateInput      State = "input"
	StateInitiating State = "initiating"
	StatePending    State = "pending"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// ReasonTimeout marks a session whose status polls ran out.
const ReasonTimeout = "timeout: verify manually"

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

var transitions = map[State][]State{
	StateInput:      {StateInitiating, StateFailed},
	StateInitiating: {StatePending, StateFailed},
	StatePending:    {StatePending, StateSuccess, StateFailed},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one attempt to collect a payment.
type Session struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Phone         string          `json:"phone,omitempty"`
	State         State           `json:"state"`
	Reason        string          `json:"reason,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	Polls         int             `json:"polls"`
	RetryOf       string          `json:"retry_of,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// Paise converts the amount to the gateway's minor unit.
func (s Session) Paise() int64 {
	return s.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// InitiateInput starts a payment.
type InitiateInput struct {
	Reference string          `json:"reference" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	Phone     string          `json:"phone" validate:"omitempty,max=15"`
}

var (
	ErrNotFound     = fmt.Errorf("payment: session %w", httpx.ErrNotFound)
	ErrInvalidInput = fmt.Errorf("payment: %w", httpx.ErrValidation)
	ErrNotRetryable = fmt.Errorf("payment: only failed sessions can be retried: %w", httpx.ErrConflict)
	ErrBadSignature = fmt.Errorf("payment: callback signature mismatch: %w", httpx.ErrUnauthorized)
	ErrTransition   = fmt.Errorf("payment: illegal state transition: %w", httpx.ErrConflict)
)
