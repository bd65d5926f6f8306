package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/register"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const idempotencyModule = "sales"

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	GetSale(ctx context.Context, id string) (Sale, error)
	ListSales(ctx context.Context, f ListFilters) ([]Sale, int, error)
	GetReturn(ctx context.Context, id string) (Return, error)
	ListReturns(ctx context.Context, saleID string) ([]Return, error)
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

// DrawerPoster appends cash drawer operations inside a caller owned
// transaction.
type DrawerPoster interface {
	Post(ctx context.Context, tx register.TxRepository, op register.Operation) (register.Operation, error)
}

// Dependencies are the collaborators of Service. Integration, Receipts,
// Customers and Idempotency are optional.
type Dependencies struct {
	Stock       StockPoster
	Drawer      DrawerPoster
	Integration IntegrationHandler
	Receipts    ReceiptQueue
	Customers   CustomerDirectory
	Idempotency *shared.IdempotencyStore
}

// Service posts sales and returns.
type Service struct {
	repo     RepositoryPort
	deps     Dependencies
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, deps Dependencies, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, deps: deps, validate: validator.New(), logger: logger}
}

type pricedLine struct {
	product ProductRef
	input   LineInput
}

// Create posts a counter sale against an open shift. Stock, the drawer and
// the sale rows commit together; loyalty and the receipt follow the commit.
func (s *Service) Create(ctx context.Context, actorID, idemKey string, req CreateSaleRequest) (Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if idemKey != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, ErrDuplicateRequest
			}
			return Sale{}, err
		}
	}

	var sale Sale
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		priced := make([]pricedLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			p, err := sc.Sales.Product(ctx, l.ProductID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return fmt.Errorf("%w: %s is inactive", ErrProductUnavailable, p.SKU)
			}
			in := LineInput{Quantity: l.Quantity, UnitPrice: p.Price, DiscountPercent: l.DiscountPercent, TaxPercent: p.TaxRate}
			if l.UnitPrice != nil {
				in.UnitPrice = *l.UnitPrice
			}
			if l.TaxPercent != nil {
				in.TaxPercent = *l.TaxPercent
			}
			priced = append(priced, pricedLine{product: p, input: in})
		}
		draft := Sale{
			Source:        SourcePOS,
			ShiftID:       req.ShiftID,
			CustomerID:    req.CustomerID,
			Status:        StatusCompleted,
			PaymentMethod: req.PaymentMethod,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedBy:     actorID,
		}
		var err error
		sale, postings, err = s.post(ctx, sc, draft, priced, req.Totals, req.LocationID, true)
		if err != nil {
			return err
		}
		if _, err := s.deps.Drawer.Post(ctx, sc.Register, register.Operation{
			ShiftID:   sale.ShiftID,
			Type:      register.OpSale,
			Method:    sale.PaymentMethod,
			Amount:    sale.Total,
			RefID:     sale.ID,
			CreatedBy: actorID,
		}); err != nil {
			return err
		}
		return record(ctx, sc.Activity, actorID, "sale.created", sale.ID, map[string]any{
			"number": sale.Number, "total": sale.Total.StringFixed(2), "payment_method": sale.PaymentMethod,
		})
	})
	if err != nil {
		if idemKey != "" && s.deps.Idempotency != nil {
			if derr := s.deps.Idempotency.Delete(ctx, idemKey, idempotencyModule); derr != nil {
				s.logger.Warn("sales: release idempotency key", slog.Any("error", derr))
			}
		}
		return Sale{}, err
	}
	s.afterSale(ctx, actorID, sale, postings)
	return sale, nil
}

// post inserts the sale, its items and the stock issue of each line.
func (s *Service) post(ctx context.Context, sc TxScope, draft Sale, lines []pricedLine, claimed *ClaimedTotals, location string, moveStock bool) (Sale, []inventory.Posting, error) {
	inputs := make([]LineInput, len(lines))
	for i, l := range lines {
		inputs[i] = l.input
	}
	totals, err := CalculateTotals(inputs)
	if err != nil {
		return Sale{}, nil, err
	}
	if err := totals.Verify(claimed); err != nil {
		return Sale{}, nil, err
	}
	number, err := sc.Numbers.Next(ctx, settings.SequenceSale)
	if err != nil {
		return Sale{}, nil, fmt.Errorf("sales: draw number: %w", err)
	}
	draft.Number = number
	draft.Subtotal = totals.Subtotal
	draft.Discount = totals.Discount
	draft.Tax = totals.Tax
	draft.Total = totals.GrandTotal
	sale, err := sc.Sales.InsertSale(ctx, draft)
	if err != nil {
		return Sale{}, nil, err
	}

	var postings []inventory.Posting
	for i, l := range lines {
		lt := totals.Lines[i]
		item := Item{
			SaleID:          sale.ID,
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
		}
		if moveStock {
			posting, err := s.deps.Stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
				Code:       fmt.Sprintf("%s-%d", sale.Number, i+1),
				Type:       inventory.MovementSale,
				LocationID: location,
				ProductID:  l.product.ID,
				Qty:        l.input.Quantity.Neg(),
				Note:       "sale " + sale.Number,
				ActorID:    draft.CreatedBy,
				RefModule:  "sales",
				RefID:      sale.ID,
			})
			if err != nil {
				return Sale{}, nil, fmt.Errorf("%s: %w", l.product.SKU, err)
			}
			item.CostPrice = posting.Card.UnitCost
			postings = append(postings, posting)
		}
		created, err := sc.Sales.InsertItem(ctx, item)
		if err != nil {
			return Sale{}, nil, err
		}
		sale.Items = append(sale.Items, created)
	}
	return sale, postings, nil
}

// UpsertExternalOrder records a storefront order keyed by its external id.
// A known order only has its status refreshed; cancelling it restocks what
// was not yet returned. The bool reports whether a sale was created.
func (s *Service) UpsertExternalOrder(ctx context.Context, actorID string, in ExternalOrder) (Sale, bool, error) {
	in.ExternalOrderID = strings.TrimSpace(in.ExternalOrderID)
	if err := s.validate.Struct(in); err != nil {
		return Sale{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	status := externalStatus(in.Status)

	var sale Sale
	var created bool
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		existing, err := sc.Sales.LockByExternalID(ctx, in.ExternalOrderID)
		switch {
		case err == nil:
			sale = existing
			next := existing.Status
			if status == StatusCancelled && existing.Status != StatusCancelled {
				next = StatusCancelled
				for _, it := range existing.Items {
					remaining := it.Quantity.Sub(it.ReturnedQty)
					if !remaining.IsPositive() {
						continue
					}
					posting, err := s.deps.Stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
						Type:      inventory.MovementReturn,
						ProductID: it.ProductID,
						Qty:       remaining,
						UnitCost:  it.CostPrice,
						Note:      "order cancelled " + existing.Number,
						ActorID:   actorID,
						RefModule: "sales",
						RefID:     existing.ID,
					})
					if err != nil {
						return err
					}
					postings = append(postings, posting)
				}
			}
			if err := sc.Sales.UpdateStatus(ctx, existing.ID, next, in.Status); err != nil {
				return err
			}
			sale.Status = next
			if in.Status != "" {
				sale.ExternalStatus = in.Status
			}
			return record(ctx, sc.Activity, actorID, "sale.external_updated", existing.ID, map[string]any{"status": in.Status})
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if len(in.Lines) == 0 {
			return fmt.Errorf("%w: order has no lines", ErrInvalidInput)
		}
		priced := make([]pricedLine, 0, len(in.Lines))
		for _, l := range in.Lines {
			p, err := sc.Sales.ProductBySKU(ctx, strings.TrimSpace(l.SKU))
			if err != nil {
				return err
			}
			line := LineInput{Quantity: l.Quantity, UnitPrice: l.UnitPrice, TaxPercent: p.TaxRate}
			if l.TaxPercent != nil {
				line.TaxPercent = *l.TaxPercent
			}
			priced = append(priced, pricedLine{product: p, input: line})
		}
		method := in.PaymentMethod
		if method == "" {
			method = PaymentOnline
		}
		sale, postings, err = s.post(ctx, sc, Sale{
			Source:          SourceWebhook,
			CustomerID:      in.CustomerID,
			Status:          status,
			PaymentMethod:   method,
			ExternalOrderID: in.ExternalOrderID,
			ExternalStatus:  in.Status,
			Notes:           in.Notes,
			CreatedBy:       actorID,
		}, priced, nil, "", status != StatusCancelled)
		if err != nil {
			return err
		}
		created = true
		return record(ctx, sc.Activity, actorID, "sale.external_created", sale.ID, map[string]any{
			"external_order_id": in.ExternalOrderID, "number": sale.Number,
		})
	})
	if err != nil {
		return Sale{}, false, err
	}
	s.deps.Stock.Publish(ctx, postings...)
	if created && sale.Status == StatusCompleted {
		s.afterSale(ctx, actorID, sale, nil)
	}
	return sale, created, nil
}

func externalStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "voided", "refunded":
		return StatusCancelled
	default:
		return StatusCompleted
	}
}

// Return raises a credit note for part or all of a sale. Returned stock goes
// back at the cost it left with, and the refund reverses the sale's loyalty
// points in proportion.
func (s *Service) Return(ctx context.Context, actorID, saleID string, req ReturnRequest) (Return, error) {
	if err := s.validate.Struct(req); err != nil {
		return Return{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, l := range req.Lines {
		if !l.Quantity.IsPositive() {
			return Return{}, fmt.Errorf("%w: return quantity must be positive", ErrInvalidInput)
		}
	}

	var sale Sale
	var rt Return
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		sale, err = sc.Sales.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == StatusCancelled || sale.Status == StatusReturned || sale.Status == StatusVoid {
			return fmt.Errorf("%w: sale is %s", ErrInvalidStatus, sale.Status)
		}
		items := make(map[string]*Item, len(sale.Items))
		for i := range sale.Items {
			items[sale.Items[i].ID] = &sale.Items[i]
		}

		refund := decimal.Zero
		var lines []ReturnItem
		for _, l := range req.Lines {
			it, ok := items[l.SaleItemID]
			if !ok {
				return fmt.Errorf("%w: item %s is not on sale %s", ErrInvalidInput, l.SaleItemID, sale.Number)
			}
			if err := sc.Sales.AddReturned(ctx, it.ID, l.Quantity); err != nil {
				return fmt.Errorf("%s: %w", it.SKU, err)
			}
			it.ReturnedQty = it.ReturnedQty.Add(l.Quantity)
			amount := it.LineTotal.Mul(l.Quantity).Div(it.Quantity).RoundDown(2)
			refund = refund.Add(amount)
			lines = append(lines, ReturnItem{SaleItemID: it.ID, ProductID: it.ProductID, Quantity: l.Quantity, Amount: amount})

			posting, err := s.deps.Stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
				Type:       inventory.MovementReturn,
				LocationID: req.LocationID,
				ProductID:  it.ProductID,
				Qty:        l.Quantity,
				UnitCost:   it.CostPrice,
				Note:       "return on " + sale.Number,
				ActorID:    actorID,
				RefModule:  "sales",
				RefID:      sale.ID,
			})
			if err != nil {
				return err
			}
			postings = append(postings, posting)
		}

		number, err := sc.Numbers.Next(ctx, settings.SequenceReturn)
		if err != nil {
			return fmt.Errorf("sales: draw number: %w", err)
		}
		rt, err = sc.Sales.InsertReturn(ctx, Return{
			Number:    number,
			SaleID:    sale.ID,
			ShiftID:   req.ShiftID,
			Reason:    strings.TrimSpace(req.Reason),
			Refund:    refund,
			Points:    ReversedPoints(sale.PointsEarned, refund, sale.Total),
			CreatedBy: actorID,
		})
		if err != nil {
			return err
		}
		for _, l := range lines {
			l.ReturnID = rt.ID
			created, err := sc.Sales.InsertReturnItem(ctx, l)
			if err != nil {
				return err
			}
			rt.Items = append(rt.Items, created)
		}
		if err := sc.Sales.AddRefunded(ctx, sale.ID, refund); err != nil {
			return err
		}
		next := StatusReturned
		for _, it := range sale.Items {
			if it.ReturnedQty.LessThan(it.Quantity) {
				next = StatusPartiallyReturned
				break
			}
		}
		if err := sc.Sales.UpdateStatus(ctx, sale.ID, next, ""); err != nil {
			return err
		}
		sale.Status = next

		if req.ShiftID != "" && refund.IsPositive() {
			if _, err := s.deps.Drawer.Post(ctx, sc.Register, register.Operation{
				ShiftID:   req.ShiftID,
				Type:      register.OpRefund,
				Method:    sale.PaymentMethod,
				Amount:    refund.Neg(),
				Reason:    rt.Reason,
				RefID:     rt.ID,
				CreatedBy: actorID,
			}); err != nil {
				return err
			}
		}
		return record(ctx, sc.Activity, actorID, "sale.returned", sale.ID, map[string]any{
			"return": rt.Number, "refund": refund.StringFixed(2),
		})
	})
	if err != nil {
		return Return{}, err
	}

	s.deps.Stock.Publish(ctx, postings...)
	if s.deps.Integration != nil && sale.CustomerID != "" {
		if err := s.deps.Integration.HandleSaleReturned(ctx, SaleReturnedEvent{
			SaleID:     sale.ID,
			ReturnID:   rt.ID,
			Number:     rt.Number,
			CustomerID: sale.CustomerID,
			Refund:     rt.Refund,
			Points:     rt.Points,
			ActorID:    actorID,
			ReturnedAt: rt.CreatedAt,
		}); err != nil {
			s.logger.Error("sales: return integration", slog.String("return", rt.Number), slog.Any("error", err))
		}
	}
	return rt, nil
}

// Update patches the notes and customer of a sale. The customer is fixed once
// the sale has earned points or left the completed state.
func (s *Service) Update(ctx context.Context, actorID, id string, req UpdateSaleRequest) (Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return Sale{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		sale, err = sc.Sales.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status == StatusVoid || sale.Status == StatusCancelled {
			return fmt.Errorf("%w: sale is %s", ErrInvalidStatus, sale.Status)
		}
		meta := map[string]any{}
		if req.Notes != nil {
			sale.Notes = strings.TrimSpace(*req.Notes)
			meta["notes"] = true
		}
		if req.CustomerID != nil {
			next := strings.TrimSpace(*req.CustomerID)
			if next != sale.CustomerID {
				if sale.PointsEarned > 0 || sale.Status != StatusCompleted {
					return ErrCustomerLocked
				}
				meta["customer_from"], meta["customer_to"] = sale.CustomerID, next
				sale.CustomerID = next
			}
		}
		if len(meta) == 0 {
			return nil
		}
		if err := sc.Sales.UpdateDetails(ctx, sale.ID, sale.Notes, sale.CustomerID); err != nil {
			return err
		}
		return record(ctx, sc.Activity, actorID, "sale.updated", sale.ID, meta)
	})
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// Void cancels a posted sale. Quantities not yet returned go back to stock
// at their sale cost and the points still standing from the sale are reversed
// after commit.
func (s *Service) Void(ctx context.Context, actorID, id string) (Sale, error) {
	var sale Sale
	var points int64
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		sale, err = sc.Sales.LockSale(ctx, id)
		if err != nil {
			return err
		}
		switch sale.Status {
		case StatusVoid, StatusCancelled, StatusReturned:
			return fmt.Errorf("%w: sale is %s", ErrInvalidStatus, sale.Status)
		}
		for _, it := range sale.Items {
			remaining := it.Quantity.Sub(it.ReturnedQty)
			if !remaining.IsPositive() {
				continue
			}
			posting, err := s.deps.Stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
				Type:      inventory.MovementReturn,
				ProductID: it.ProductID,
				Qty:       remaining,
				UnitCost:  it.CostPrice,
				Note:      "void of " + sale.Number,
				ActorID:   actorID,
				RefModule: "sales",
				RefID:     sale.ID,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", it.SKU, err)
			}
			postings = append(postings, posting)
		}
		reversed, err := sc.Sales.PointsReversed(ctx, sale.ID)
		if err != nil {
			return err
		}
		points = max(sale.PointsEarned-reversed, 0)
		if err := sc.Sales.UpdateStatus(ctx, sale.ID, StatusVoid, ""); err != nil {
			return err
		}
		sale.Status = StatusVoid
		return record(ctx, sc.Activity, actorID, "sale.voided", sale.ID, map[string]any{
			"number": sale.Number, "points": points,
		})
	})
	if err != nil {
		return Sale{}, err
	}

	s.deps.Stock.Publish(ctx, postings...)
	if s.deps.Integration != nil && sale.CustomerID != "" {
		if err := s.deps.Integration.HandleSaleVoided(ctx, SaleVoidedEvent{
			SaleID:     sale.ID,
			Number:     sale.Number,
			CustomerID: sale.CustomerID,
			Points:     points,
			ActorID:    actorID,
			VoidedAt:   time.Now(),
		}); err != nil {
			s.logger.Error("sales: void integration", slog.String("sale", sale.Number), slog.Any("error", err))
		}
	}
	return sale, nil
}

// ReversedPoints is the share of earned points a refund takes back, rounded
// down.
func ReversedPoints(earned int64, refund, total decimal.Decimal) int64 {
	if earned <= 0 || !total.IsPositive() || !refund.IsPositive() {
		return 0
	}
	if refund.GreaterThanOrEqual(total) {
		return earned
	}
	return decimal.NewFromInt(earned).Mul(refund).Div(total).Floor().IntPart()
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, id string) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns a page of sales.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Sale, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return s.repo.ListSales(ctx, f)
}

// Returns lists the credit notes of a sale.
func (s *Service) Returns(ctx context.Context, saleID string) ([]Return, error) {
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, saleID)
}

// GetReturn returns one credit note.
func (s *Service) GetReturn(ctx context.Context, id string) (Return, error) {
	return s.repo.GetReturn(ctx, id)
}

func (s *Service) afterSale(ctx context.Context, actorID string, sale Sale, postings []inventory.Posting) {
	s.deps.Stock.Publish(ctx, postings...)
	if sale.CustomerID == "" {
		return
	}
	if s.deps.Integration != nil {
		if err := s.deps.Integration.HandleSaleCompleted(ctx, SaleCompletedEvent{
			SaleID:      sale.ID,
			Number:      sale.Number,
			CustomerID:  sale.CustomerID,
			Total:       sale.Total,
			ActorID:     actorID,
			CompletedAt: sale.CreatedAt,
		}); err != nil {
			s.logger.Error("sales: sale integration", slog.String("sale", sale.Number), slog.Any("error", err))
		}
	}
	if s.deps.Receipts == nil || s.deps.Customers == nil {
		return
	}
	phone, err := s.deps.Customers.ContactPhone(ctx, sale.CustomerID)
	if err != nil {
		s.logger.Warn("sales: receipt contact", slog.String("sale", sale.Number), slog.Any("error", err))
		return
	}
	if phone == "" {
		return
	}
	receipt := Receipt{SaleID: sale.ID, Number: sale.Number, Phone: phone, Total: sale.Total, Tax: sale.Tax, At: sale.CreatedAt}
	if receipt.At.IsZero() {
		receipt.At = time.Now()
	}
	for _, it := range sale.Items {
		receipt.Lines = append(receipt.Lines, ReceiptLine{Name: it.Name, Quantity: it.Quantity, LineTotal: it.LineTotal})
	}
	if err := s.deps.Receipts.EnqueueReceipt(ctx, receipt); err != nil {
		s.logger.Warn("sales: enqueue receipt", slog.String("sale", sale.Number), slog.Any("error", err))
	}
}

func record(ctx context.Context, activity ActivityRecorder, actorID, action, id string, meta map[string]any) error {
	if activity == nil {
		return nil
	}
	return activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "sale", EntityID: id, Meta: meta})
}
