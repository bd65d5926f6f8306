package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn is an inbound receipt such as a GRN.
	MovementIn MovementType = "IN"
	// MovementOut is a generic issue.
	MovementOut MovementType = "OUT"
	// MovementTransfer moves stock between locations.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjust is a manual correction.
	MovementAdjust MovementType = "ADJUST"
	// MovementSale is stock leaving through a sale.
	MovementSale MovementType = "SALE"
	// MovementReturn is stock coming back from a customer return.
	MovementReturn MovementType = "RETURN"
	// MovementSync is a level set by an external system.
	MovementSync MovementType = "SYNC"
)

// DefaultLocation is the shop floor.
const DefaultLocation = "MAIN"

// Balance summarises stock for a product at a location.
type Balance struct {
	LocationID   string          `json:"location_id"`
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku,omitempty"`
	Name         string          `json:"name,omitempty"`
	Qty          decimal.Decimal `json:"qty"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	ReorderLevel int             `json:"reorder_level"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Movement is a stock movement header with its single line.
type Movement struct {
	ID         string
	Code       string
	Type       MovementType
	LocationID string
	ProductID  string
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	RefModule  string
	RefID      string
	Note       string
	PostedAt   time.Time
	CreatedBy  string
}

// StockCardEntry is one line of a product's stock card.
type StockCardEntry struct {
	Code        string          `json:"code"`
	Type        MovementType    `json:"type"`
	PostedAt    time.Time       `json:"posted_at"`
	QtyIn       decimal.Decimal `json:"qty_in"`
	QtyOut      decimal.Decimal `json:"qty_out"`
	BalanceQty  decimal.Decimal `json:"balance_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	BalanceCost decimal.Decimal `json:"balance_cost"`
	RefModule   string          `json:"ref_module,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// InboundInput receives stock, e.g. from a GRN.
type InboundInput struct {
	Code       string          `json:"code"`
	LocationID string          `json:"location_id"`
	ProductID  string          `json:"product_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Note       string          `json:"note"`
	ActorID    string          `json:"-"`
	RefModule  string          `json:"-"`
	RefID      string          `json:"-"`
}

// AdjustmentInput changes stock by a signed quantity.
type AdjustmentInput struct {
	Code       string          `json:"code"`
	LocationID string          `json:"location_id"`
	ProductID  string          `json:"product_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Note       string          `json:"note" validate:"required"`
	ActorID    string          `json:"-"`
	RefModule  string          `json:"-"`
	RefID      string          `json:"-"`
}

// TransferInput moves stock between two locations.
type TransferInput struct {
	Code      string          `json:"code"`
	ProductID string          `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty"`
	From      string          `json:"from" validate:"required"`
	To        string          `json:"to" validate:"required"`
	Note      string          `json:"note"`
	ActorID   string          `json:"-"`
}

// StockCardFilter narrows stock card entries.
type StockCardFilter struct {
	LocationID string
	ProductID  string
	From       time.Time
	To         time.Time
	Limit      int
}

// BalanceFilters narrows balance listings.
type BalanceFilters struct {
	LocationID string
	LowOnly    bool
	Limit      int
	Offset     int
}

var (
	// ErrNegativeStock is returned when a movement would take stock below zero.
	ErrNegativeStock = fmt.Errorf("inventory: insufficient stock: %w", httpx.ErrConflict)
	// ErrInvalidQuantity indicates a zero or malformed quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be non zero: %w", httpx.ErrValidation)
	// ErrInvalidUnitCost indicates a negative cost.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", httpx.ErrValidation)
	// ErrInvalidInput wraps other validation failures.
	ErrInvalidInput = fmt.Errorf("inventory: %w", httpx.ErrValidation)
	// ErrBalanceNotFound indicates no balance row exists yet.
	ErrBalanceNotFound = fmt.Errorf("inventory: balance not found: %w", httpx.ErrNotFound)
	// ErrProductNotFound indicates an unknown SKU or product id.
	ErrProductNotFound = fmt.Errorf("inventory: product not found: %w", httpx.ErrNotFound)
)
