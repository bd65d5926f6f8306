package delivery

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

// Status is the lifecycle state of a delivery challan.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// CanEdit reports whether challan lines may still change.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanDispatch reports whether goods may leave against the challan.
func (s Status) CanDispatch() bool { return s == StatusDraft }

// CanCancel reports whether the challan may be cancelled. Dispatched goods
// come back into stock.
func (s Status) CanCancel() bool { return s == StatusDraft || s == StatusDispatched }

// Challan is the document that travels with goods shipped against a sales
// order. Stock leaves when it is dispatched.
type Challan struct {
	ID             string    `json:"id"`
	Number         string    `json:"number"`
	OrderID        string    `json:"order_id"`
	CustomerID     string    `json:"customer_id"`
	LocationID     string    `json:"location_id"`
	Status         Status    `json:"status"`
	Carrier        string    `json:"carrier,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	DispatchedAt   time.Time `json:"dispatched_at,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Items          []Item    `json:"items,omitempty"`
}

// Item is one shipped quantity of a sales order line. UnitCost is the
// moving average cost taken at dispatch.
type Item struct {
	ID          string          `json:"id"`
	ChallanID   string          `json:"challan_id"`
	LineNo      int             `json:"line_no"`
	OrderItemID string          `json:"order_item_id"`
	ProductID   string          `json:"product_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// LineRequest ships qty of one sales order line.
type LineRequest struct {
	OrderItemID string          `json:"order_item_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// CreateRequest raises a draft challan against a confirmed sales order.
type CreateRequest struct {
	OrderID        string        `json:"order_id" validate:"required"`
	LocationID     string        `json:"location_id" validate:"max=50"`
	Carrier        string        `json:"carrier" validate:"max=100"`
	TrackingNumber string        `json:"tracking_number" validate:"max=100"`
	Notes          string        `json:"notes" validate:"max=1000"`
	Lines          []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// DispatchRequest records how the goods left.
type DispatchRequest struct {
	Carrier        string `json:"carrier" validate:"max=100"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

// ListFilters filters challan listings.
type ListFilters struct {
	OrderID string
	Status  Status
	Search  string
	Limit   int
	Offset  int
}

var (
	ErrNotFound      = fmt.Errorf("delivery: challan %w", httpx.ErrNotFound)
	ErrInvalidInput  = fmt.Errorf("delivery: %w", httpx.ErrValidation)
	ErrInvalidStatus = fmt.Errorf("delivery: invalid status: %w", httpx.ErrConflict)
)
