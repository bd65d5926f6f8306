package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

// OrderStatus is the lifecycle state of a sales order.
type OrderStatus string

const (
	OrderDraft              OrderStatus = "draft"
	OrderConfirmed          OrderStatus = "confirmed"
	OrderPartiallyDelivered OrderStatus = "partially_delivered"
	OrderDelivered          OrderStatus = "delivered"
	OrderCancelled          OrderStatus = "cancelled"
)

// Order is a customer order booked ahead of delivery, typically a custom
// piece or a bulk purchase. Stock leaves only through delivery challans.
type Order struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	CustomerID   string          `json:"customer_id"`
	Status       OrderStatus     `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate time.Time       `json:"expected_date,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []OrderItem     `json:"items,omitempty"`
}

// OrderItem is one ordered line and how much of it has been delivered.
type OrderItem struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	LineNo          int             `json:"line_no"`
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	DeliveredQty    decimal.Decimal `json:"delivered_qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Remaining is the quantity still to deliver.
func (it OrderItem) Remaining() decimal.Decimal {
	return it.Quantity.Sub(it.DeliveredQty)
}

// CanEdit reports whether lines and header may still change.
func (o Order) CanEdit() bool { return o.Status == OrderDraft }

// Deliverable reports whether challans may be raised against the order.
func (o Order) Deliverable() bool {
	return o.Status == OrderConfirmed || o.Status == OrderPartiallyDelivered
}

// CanCancel reports whether the order may be cancelled. Anything delivered
// has to come back through a return first.
func (o Order) CanCancel() bool {
	if o.Status != OrderDraft && o.Status != OrderConfirmed {
		return false
	}
	for _, it := range o.Items {
		if it.DeliveredQty.IsPositive() {
			return false
		}
	}
	return true
}

// DeliveryStatus derives the order status from its delivered quantities.
func (o Order) DeliveryStatus() OrderStatus {
	some, all := false, true
	for _, it := range o.Items {
		if it.DeliveredQty.IsPositive() {
			some = true
		}
		if it.DeliveredQty.LessThan(it.Quantity) {
			all = false
		}
	}
	switch {
	case all && len(o.Items) > 0:
		return OrderDelivered
	case some:
		return OrderPartiallyDelivered
	default:
		return OrderConfirmed
	}
}

// OrderRequest creates a sales order or replaces a draft.
type OrderRequest struct {
	CustomerID   string         `json:"customer_id" validate:"required"`
	OrderDate    time.Time      `json:"order_date"`
	ExpectedDate time.Time      `json:"expected_date"`
	Lines        []LineRequest  `json:"lines" validate:"required,min=1,dive"`
	Totals       *ClaimedTotals `json:"totals,omitempty"`
	Notes        string         `json:"notes" validate:"max=1000"`
}

// OrderFilters filters sales order listings.
type OrderFilters struct {
	CustomerID string
	Status     OrderStatus
	Search     string
	Limit      int
	Offset     int
}

var (
	ErrOrderNotFound       = fmt.Errorf("sales: order %w", httpx.ErrNotFound)
	ErrOrderNotEditable    = fmt.Errorf("sales: order is no longer a draft: %w", httpx.ErrConflict)
	ErrOrderNotDeliverable = fmt.Errorf("sales: order is not open for delivery: %w", httpx.ErrConflict)
	ErrOverDelivery        = fmt.Errorf("sales: delivery exceeds ordered quantity: %w", httpx.ErrConflict)
)

// OrderTxRepository is the set of sales order statements run inside a
// transaction. Delivery challans reach it through NewOrderTxRepository.
type OrderTxRepository interface {
	InsertOrder(ctx context.Context, o Order) (Order, error)
	UpdateOrderDraft(ctx context.Context, o Order) error
	DeleteOrderItems(ctx context.Context, orderID string) error
	InsertOrderItem(ctx context.Context, it OrderItem) (OrderItem, error)
	LockOrder(ctx context.Context, id string) (Order, error)
	SetOrderStatus(ctx context.Context, id string, status OrderStatus) error
	AddDelivered(ctx context.Context, itemID string, qty decimal.Decimal) error
	Product(ctx context.Context, id string) (ProductRef, error)
}

// OrderTxScope is what an order write sees inside its transaction.
type OrderTxScope struct {
	Orders   OrderTxRepository
	Numbers  Sequencer
	Activity ActivityRecorder
}

// OrderRepositoryPort abstracts sales order persistence.
type OrderRepositoryPort interface {
	WithOrderTx(ctx context.Context, fn func(context.Context, OrderTxScope) error) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f OrderFilters) ([]Order, int, error)
}

// OrderService books, confirms and cancels sales orders.
type OrderService struct {
	repo OrderRepositoryPort
	svc  *Service
}

// NewOrderService constructs OrderService. Validation and logging are shared
// with the sale service.
func NewOrderService(repo OrderRepositoryPort, svc *Service) *OrderService {
	return &OrderService{repo: repo, svc: svc}
}

// Create books a draft order priced from the catalog.
func (s *OrderService) Create(ctx context.Context, actorID string, req OrderRequest) (Order, error) {
	if err := s.check(req); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithOrderTx(ctx, func(ctx context.Context, sc OrderTxScope) error {
		priced, totals, err := priceOrder(ctx, sc.Orders, req)
		if err != nil {
			return err
		}
		number, err := sc.Numbers.Next(ctx, settings.SequenceSalesOrder)
		if err != nil {
			return fmt.Errorf("sales: draw number: %w", err)
		}
		draft := orderHeader(req, totals)
		draft.Number = number
		draft.Status = OrderDraft
		draft.CreatedBy = actorID
		order, err = sc.Orders.InsertOrder(ctx, draft)
		if err != nil {
			return err
		}
		if order.Items, err = insertOrderItems(ctx, sc.Orders, order.ID, priced, totals); err != nil {
			return err
		}
		return recordOrder(ctx, sc.Activity, actorID, "sales_order.created", order.ID, map[string]any{
			"number": order.Number, "total": order.Total.StringFixed(2),
		})
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Update replaces the header and lines of a draft order.
func (s *OrderService) Update(ctx context.Context, actorID, id string, req OrderRequest) (Order, error) {
	if err := s.check(req); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithOrderTx(ctx, func(ctx context.Context, sc OrderTxScope) error {
		current, err := sc.Orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !current.CanEdit() {
			return ErrOrderNotEditable
		}
		priced, totals, err := priceOrder(ctx, sc.Orders, req)
		if err != nil {
			return err
		}
		order = orderHeader(req, totals)
		order.ID = current.ID
		order.Number = current.Number
		order.Status = current.Status
		order.CreatedBy = current.CreatedBy
		order.CreatedAt = current.CreatedAt
		if err := sc.Orders.UpdateOrderDraft(ctx, order); err != nil {
			return err
		}
		if err := sc.Orders.DeleteOrderItems(ctx, order.ID); err != nil {
			return err
		}
		if order.Items, err = insertOrderItems(ctx, sc.Orders, order.ID, priced, totals); err != nil {
			return err
		}
		return recordOrder(ctx, sc.Activity, actorID, "sales_order.updated", order.ID, map[string]any{
			"total": order.Total.StringFixed(2),
		})
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Confirm opens a draft order for delivery.
func (s *OrderService) Confirm(ctx context.Context, actorID, id string) (Order, error) {
	return s.transition(ctx, actorID, id, "sales_order.confirmed", func(o Order) (OrderStatus, error) {
		if o.Status != OrderDraft {
			return "", fmt.Errorf("%w: order is %s", ErrInvalidStatus, o.Status)
		}
		return OrderConfirmed, nil
	})
}

// Cancel closes an order that has not shipped anything.
func (s *OrderService) Cancel(ctx context.Context, actorID, id string) (Order, error) {
	return s.transition(ctx, actorID, id, "sales_order.cancelled", func(o Order) (OrderStatus, error) {
		if !o.CanCancel() {
			return "", fmt.Errorf("%w: order is %s", ErrInvalidStatus, o.Status)
		}
		return OrderCancelled, nil
	})
}

func (s *OrderService) transition(ctx context.Context, actorID, id, action string, next func(Order) (OrderStatus, error)) (Order, error) {
	var order Order
	err := s.repo.WithOrderTx(ctx, func(ctx context.Context, sc OrderTxScope) error {
		var err error
		order, err = sc.Orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		status, err := next(order)
		if err != nil {
			return err
		}
		if err := sc.Orders.SetOrderStatus(ctx, order.ID, status); err != nil {
			return err
		}
		from := order.Status
		order.Status = status
		return recordOrder(ctx, sc.Activity, actorID, action, order.ID, map[string]any{
			"from": string(from), "to": string(status),
		})
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Get returns an order with its lines.
func (s *OrderService) Get(ctx context.Context, id string) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns a page of orders.
func (s *OrderService) List(ctx context.Context, f OrderFilters) ([]Order, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return s.repo.ListOrders(ctx, f)
}

func (s *OrderService) check(req OrderRequest) error {
	if err := s.svc.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !req.ExpectedDate.IsZero() && !req.OrderDate.IsZero() && req.ExpectedDate.Before(req.OrderDate) {
		return fmt.Errorf("%w: expected date precedes order date", ErrInvalidInput)
	}
	return nil
}

// DeliverOrderLine raises the delivered quantity of one order line inside a
// caller owned transaction and moves the order to its derived status. A
// negative qty takes a cancelled delivery back off the order.
func DeliverOrderLine(ctx context.Context, tx OrderTxRepository, order *Order, itemID string, qty decimal.Decimal) error {
	var line *OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			line = &order.Items[i]
			break
		}
	}
	if line == nil {
		return fmt.Errorf("%w: line %s is not on order %s", ErrInvalidInput, itemID, order.Number)
	}
	next := line.DeliveredQty.Add(qty)
	if next.GreaterThan(line.Quantity) || next.IsNegative() {
		return fmt.Errorf("%s: %w", line.SKU, ErrOverDelivery)
	}
	if err := tx.AddDelivered(ctx, itemID, qty); err != nil {
		return err
	}
	line.DeliveredQty = next
	status := order.DeliveryStatus()
	if status == order.Status {
		return nil
	}
	if err := tx.SetOrderStatus(ctx, order.ID, status); err != nil {
		return err
	}
	order.Status = status
	return nil
}

func priceOrder(ctx context.Context, tx OrderTxRepository, req OrderRequest) ([]pricedLine, Totals, error) {
	priced := make([]pricedLine, 0, len(req.Lines))
	inputs := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, err := tx.Product(ctx, l.ProductID)
		if err != nil {
			return nil, Totals{}, err
		}
		if !p.IsActive {
			return nil, Totals{}, fmt.Errorf("%w: %s is inactive", ErrProductUnavailable, p.SKU)
		}
		in := LineInput{Quantity: l.Quantity, UnitPrice: p.Price, DiscountPercent: l.DiscountPercent, TaxPercent: p.TaxRate}
		if l.UnitPrice != nil {
			in.UnitPrice = *l.UnitPrice
		}
		if l.TaxPercent != nil {
			in.TaxPercent = *l.TaxPercent
		}
		priced = append(priced, pricedLine{product: p, input: in})
		inputs = append(inputs, in)
	}
	totals, err := CalculateTotals(inputs)
	if err != nil {
		return nil, Totals{}, err
	}
	if err := totals.Verify(req.Totals); err != nil {
		return nil, Totals{}, err
	}
	return priced, totals, nil
}

func orderHeader(req OrderRequest, totals Totals) Order {
	o := Order{
		CustomerID:   strings.TrimSpace(req.CustomerID),
		OrderDate:    req.OrderDate,
		ExpectedDate: req.ExpectedDate,
		Subtotal:     totals.Subtotal,
		Discount:     totals.Discount,
		Tax:          totals.Tax,
		Total:        totals.GrandTotal,
		Notes:        strings.TrimSpace(req.Notes),
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return o
}

func insertOrderItems(ctx context.Context, tx OrderTxRepository, orderID string, lines []pricedLine, totals Totals) ([]OrderItem, error) {
	out := make([]OrderItem, 0, len(lines))
	for i, l := range lines {
		lt := totals.Lines[i]
		created, err := tx.InsertOrderItem(ctx, OrderItem{
			OrderID:         orderID,
			LineNo:          i + 1,
			ProductID:       l.product.ID,
			SKU:             l.product.SKU,
			Name:            l.product.Name,
			Quantity:        l.input.Quantity,
			UnitPrice:       l.input.UnitPrice,
			DiscountPercent: l.input.DiscountPercent,
			TaxPercent:      l.input.TaxPercent,
			DiscountAmount:  lt.Discount,
			TaxAmount:       lt.Tax,
			LineTotal:       lt.Total,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func recordOrder(ctx context.Context, activity ActivityRecorder, actorID, action, id string, meta map[string]any) error {
	if activity == nil {
		return nil
	}
	return activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "sales_order", EntityID: id, Meta: meta})
}
