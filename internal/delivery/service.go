package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

// RepositoryPort abstracts challan persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	GetChallan(ctx context.Context, id string) (Challan, error)
	ListChallans(ctx context.Context, f ListFilters) ([]Challan, int, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// StockPoster applies stock movements inside a caller owned transaction.
type StockPoster interface {
	Apply(ctx context.Context, tx inventory.TxRepository, p inventory.MovementParams) (inventory.Posting, error)
	Publish(ctx context.Context, postings ...inventory.Posting)
}

// Service raises, dispatches and closes delivery challans.
type Service struct {
	repo     RepositoryPort
	stock    StockPoster
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, stock StockPoster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, validate: validator.New(), logger: logger}
}

// Create raises a draft challan. Each line must fit in what the order still
// has to deliver.
func (s *Service) Create(ctx context.Context, actorID string, req CreateRequest) (Challan, error) {
	if err := s.validate.Struct(req); err != nil {
		return Challan{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var ch Challan
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		order, err := sc.Orders.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.Deliverable() {
			return fmt.Errorf("%w: order %s is %s", sales.ErrOrderNotDeliverable, order.Number, order.Status)
		}
		lines := make(map[string]sales.OrderItem, len(order.Items))
		for _, it := range order.Items {
			lines[it.ID] = it
		}
		asked := map[string]decimal.Decimal{}
		for _, l := range req.Lines {
			line, ok := lines[l.OrderItemID]
			if !ok {
				return fmt.Errorf("%w: line %s is not on order %s", ErrInvalidInput, l.OrderItemID, order.Number)
			}
			if !l.Quantity.IsPositive() {
				return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
			}
			asked[line.ID] = asked[line.ID].Add(l.Quantity)
			if asked[line.ID].GreaterThan(line.Remaining()) {
				return fmt.Errorf("%s: %w", line.SKU, sales.ErrOverDelivery)
			}
		}

		number, err := sc.Numbers.Next(ctx, settings.SequenceChallan)
		if err != nil {
			return fmt.Errorf("delivery: draw number: %w", err)
		}
		ch, err = sc.Challans.InsertChallan(ctx, Challan{
			Number:         number,
			OrderID:        order.ID,
			CustomerID:     order.CustomerID,
			LocationID:     strings.TrimSpace(req.LocationID),
			Status:         StatusDraft,
			Carrier:        strings.TrimSpace(req.Carrier),
			TrackingNumber: strings.TrimSpace(req.TrackingNumber),
			Notes:          strings.TrimSpace(req.Notes),
			CreatedBy:      actorID,
		})
		if err != nil {
			return err
		}
		for i, l := range req.Lines {
			line := lines[l.OrderItemID]
			created, err := sc.Challans.InsertItem(ctx, Item{
				ChallanID:   ch.ID,
				LineNo:      i + 1,
				OrderItemID: line.ID,
				ProductID:   line.ProductID,
				SKU:         line.SKU,
				Name:        line.Name,
				Quantity:    l.Quantity,
			})
			if err != nil {
				return err
			}
			ch.Items = append(ch.Items, created)
		}
		return record(ctx, sc.Activity, actorID, "delivery_challan.created", ch.ID, map[string]any{
			"number": ch.Number, "order": order.Number,
		})
	})
	if err != nil {
		return Challan{}, err
	}
	return ch, nil
}

// Dispatch issues the challan's goods from stock and books them as
// delivered on the sales order, all in one transaction.
func (s *Service) Dispatch(ctx context.Context, actorID, id string, req DispatchRequest) (Challan, error) {
	if err := s.validate.Struct(req); err != nil {
		return Challan{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var ch Challan
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		ch, err = sc.Challans.LockChallan(ctx, id)
		if err != nil {
			return err
		}
		if !ch.Status.CanDispatch() {
			return fmt.Errorf("%w: challan is %s", ErrInvalidStatus, ch.Status)
		}
		order, err := sc.Orders.LockOrder(ctx, ch.OrderID)
		if err != nil {
			return err
		}
		if !order.Deliverable() {
			return fmt.Errorf("%w: order %s is %s", sales.ErrOrderNotDeliverable, order.Number, order.Status)
		}
		for i, it := range ch.Items {
			if err := sales.DeliverOrderLine(ctx, sc.Orders, &order, it.OrderItemID, it.Quantity); err != nil {
				return err
			}
			posting, err := s.stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
				Code:       fmt.Sprintf("%s-%d", ch.Number, it.LineNo),
				Type:       inventory.MovementSale,
				LocationID: ch.LocationID,
				ProductID:  it.ProductID,
				Qty:        it.Quantity.Neg(),
				Note:       "challan " + ch.Number,
				ActorID:    actorID,
				RefModule:  "delivery",
				RefID:      ch.ID,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", it.SKU, err)
			}
			ch.Items[i].UnitCost = posting.Card.UnitCost
			if err := sc.Challans.SetItemCost(ctx, it.ID, posting.Card.UnitCost); err != nil {
				return err
			}
			postings = append(postings, posting)
		}
		if c := strings.TrimSpace(req.Carrier); c != "" {
			ch.Carrier = c
		}
		if t := strings.TrimSpace(req.TrackingNumber); t != "" {
			ch.TrackingNumber = t
		}
		ch.Status = StatusDispatched
		ch.DispatchedAt = time.Now().UTC()
		if err := sc.Challans.UpdateStatus(ctx, ch); err != nil {
			return err
		}
		return record(ctx, sc.Activity, actorID, "delivery_challan.dispatched", ch.ID, map[string]any{
			"number": ch.Number, "order": order.Number, "order_status": string(order.Status),
		})
	})
	if err != nil {
		return Challan{}, err
	}
	s.stock.Publish(ctx, postings...)
	return ch, nil
}

// MarkDelivered records that the customer received a dispatched challan.
func (s *Service) MarkDelivered(ctx context.Context, actorID, id string) (Challan, error) {
	var ch Challan
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		ch, err = sc.Challans.LockChallan(ctx, id)
		if err != nil {
			return err
		}
		if ch.Status != StatusDispatched {
			return fmt.Errorf("%w: challan is %s", ErrInvalidStatus, ch.Status)
		}
		ch.Status = StatusDelivered
		ch.DeliveredAt = time.Now().UTC()
		if err := sc.Challans.UpdateStatus(ctx, ch); err != nil {
			return err
		}
		return record(ctx, sc.Activity, actorID, "delivery_challan.delivered", ch.ID, map[string]any{"number": ch.Number})
	})
	if err != nil {
		return Challan{}, err
	}
	return ch, nil
}

// Cancel voids a challan. A dispatched challan puts its goods back at the
// dispatch cost and takes the quantities off the sales order.
func (s *Service) Cancel(ctx context.Context, actorID, id string) (Challan, error) {
	var ch Challan
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		ch, err = sc.Challans.LockChallan(ctx, id)
		if err != nil {
			return err
		}
		if !ch.Status.CanCancel() {
			return fmt.Errorf("%w: challan is %s", ErrInvalidStatus, ch.Status)
		}
		if ch.Status == StatusDispatched {
			order, err := sc.Orders.LockOrder(ctx, ch.OrderID)
			if err != nil {
				return err
			}
			for _, it := range ch.Items {
				if err := sales.DeliverOrderLine(ctx, sc.Orders, &order, it.OrderItemID, it.Quantity.Neg()); err != nil {
					return err
				}
				posting, err := s.stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
					Type:       inventory.MovementReturn,
					LocationID: ch.LocationID,
					ProductID:  it.ProductID,
					Qty:        it.Quantity,
					UnitCost:   it.UnitCost,
					Note:       "cancelled challan " + ch.Number,
					ActorID:    actorID,
					RefModule:  "delivery",
					RefID:      ch.ID,
				})
				if err != nil {
					return fmt.Errorf("%s: %w", it.SKU, err)
				}
				postings = append(postings, posting)
			}
		}
		from := ch.Status
		ch.Status = StatusCancelled
		if err := sc.Challans.UpdateStatus(ctx, ch); err != nil {
			return err
		}
		return record(ctx, sc.Activity, actorID, "delivery_challan.cancelled", ch.ID, map[string]any{
			"number": ch.Number, "from": string(from),
		})
	})
	if err != nil {
		return Challan{}, err
	}
	s.stock.Publish(ctx, postings...)
	return ch, nil
}

// Get returns a challan with its lines.
func (s *Service) Get(ctx context.Context, id string) (Challan, error) {
	return s.repo.GetChallan(ctx, id)
}

// List returns a page of challans.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Challan, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return s.repo.ListChallans(ctx, f)
}

func record(ctx context.Context, activity ActivityRecorder, actorID, action, id string, meta map[string]any) error {
	if activity == nil {
		return nil
	}
	return activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "delivery_challan", EntityID: id, Meta: meta})
}
