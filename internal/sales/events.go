package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SaleCompletedEvent is published after a sale commits.
type SaleCompletedEvent struct {
	SaleID      string
	Number      string
	CustomerID  string
	Total       decimal.Decimal
	ActorID     string
	CompletedAt time.Time
}

// SaleReturnedEvent is published after a return commits. Points is the share
// of the sale's earned points that the refund reverses.
type SaleReturnedEvent struct {
	SaleID     string
	ReturnID   string
	Number     string
	CustomerID string
	Refund     decimal.Decimal
	Points     int64
	ActorID    string
	ReturnedAt time.Time
}

// SaleVoidedEvent is published after a void commits. Points is what the sale
// earned minus what its returns already reversed.
type SaleVoidedEvent struct {
	SaleID     string
	Number     string
	CustomerID string
	Points     int64
	ActorID    string
	VoidedAt   time.Time
}

// IntegrationHandler reacts to committed sales.
type IntegrationHandler interface {
	HandleSaleCompleted(ctx context.Context, evt SaleCompletedEvent) error
	HandleSaleReturned(ctx context.Context, evt SaleReturnedEvent) error
	HandleSaleVoided(ctx context.Context, evt SaleVoidedEvent) error
}

// ReceiptLine is one line on a customer receipt.
type ReceiptLine struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Receipt is the payload of a WhatsApp receipt job.
type Receipt struct {
	SaleID string          `json:"sale_id"`
	Number string          `json:"number"`
	Phone  string          `json:"phone"`
	Total  decimal.Decimal `json:"total"`
	Tax    decimal.Decimal `json:"tax"`
	Lines  []ReceiptLine   `json:"lines"`
	At     time.Time       `json:"at"`
}

// ReceiptQueue enqueues receipt delivery.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, r Receipt) error
}

// CustomerDirectory resolves where to send a receipt.
type CustomerDirectory interface {
	ContactPhone(ctx context.Context, customerID string) (string, error)
}
