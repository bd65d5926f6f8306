package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const grnIdempotencyModule = "procurement.grn"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	ListVendors(ctx context.Context, f VendorFilters) ([]Vendor, int, error)
	GetVendor(ctx context.Context, id string) (Vendor, error)
	CreateVendor(ctx context.Context, v Vendor) (Vendor, error)
	UpdateVendor(ctx context.Context, id string, p VendorPatch) (Vendor, error)
	ListVendorProducts(ctx context.Context, vendorID string) ([]VendorProduct, error)
	UpsertVendorProduct(ctx context.Context, vp VendorProduct) (VendorProduct, error)
	DeleteVendorProduct(ctx context.Context, vendorID, productID string) error
	GetPO(ctx context.Context, id string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, f POFilters) ([]PurchaseOrder, int, error)
	GetGRN(ctx context.Context, id string) (GoodsReceipt, error)
	ListGRNs(ctx context.Context, poID string) ([]GoodsReceipt, error)
}

// StockPoster applies inbound stock inside a caller owned transaction.
type StockPoster interface {
	Apply(ctx context.Context, tx inventory.TxRepository, p inventory.MovementParams) (inventory.Posting, error)
	Publish(ctx context.Context, postings ...inventory.Posting)
}

// Service orchestrates vendors, purchase orders and goods receipts.
type Service struct {
	repo        RepositoryPort
	stock       StockPoster
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, stock StockPoster, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, idempotency: idem, validate: validator.New(), logger: logger, now: time.Now}
}

// ListVendors returns a page of vendors.
func (s *Service) ListVendors(ctx context.Context, f VendorFilters) ([]Vendor, int, error) {
	return s.repo.ListVendors(ctx, f)
}

// GetVendor returns one vendor.
func (s *Service) GetVendor(ctx context.Context, id string) (Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// CreateVendor registers a vendor. Codes are stored upper-case.
func (s *Service) CreateVendor(ctx context.Context, req VendorRequest) (Vendor, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return Vendor{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.repo.CreateVendor(ctx, Vendor{
		Code: req.Code, Name: req.Name, ContactName: req.ContactName, Phone: req.Phone, Email: req.Email,
		Address: req.Address, TaxID: req.TaxID, PaymentTerms: req.PaymentTerms, Notes: req.Notes,
	})
}

// UpdateVendor patches a vendor.
func (s *Service) UpdateVendor(ctx context.Context, id string, p VendorPatch) (Vendor, error) {
	if err := s.validate.Struct(p); err != nil {
		return Vendor{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.repo.UpdateVendor(ctx, id, p)
}

// DeactivateVendor soft-deletes a vendor so past orders keep their link.
func (s *Service) DeactivateVendor(ctx context.Context, id string) error {
	inactive := false
	_, err := s.repo.UpdateVendor(ctx, id, VendorPatch{IsActive: &inactive})
	return err
}

// VendorProducts lists products a vendor supplies.
func (s *Service) VendorProducts(ctx context.Context, vendorID string) ([]VendorProduct, error) {
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	return s.repo.ListVendorProducts(ctx, vendorID)
}

// LinkProduct records that a vendor supplies a product.
func (s *Service) LinkProduct(ctx context.Context, vendorID string, req VendorProductRequest) (VendorProduct, error) {
	if err := s.validate.Struct(req); err != nil {
		return VendorProduct{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Cost.IsNegative() {
		return VendorProduct{}, fmt.Errorf("%w: cost cannot be negative", ErrValidation)
	}
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return VendorProduct{}, err
	}
	return s.repo.UpsertVendorProduct(ctx, VendorProduct{
		VendorID: vendorID, ProductID: req.ProductID, VendorSKU: req.VendorSKU, Cost: req.Cost,
		LeadTimeDays: req.LeadTimeDays, IsPreferred: req.IsPreferred,
	})
}

// UnlinkProduct removes a vendor product link.
func (s *Service) UnlinkProduct(ctx context.Context, vendorID, productID string) error {
	return s.repo.DeleteVendorProduct(ctx, vendorID, productID)
}

func (s *Service) priceOrder(req PORequest) (sales.Totals, error) {
	if err := s.validate.Struct(req); err != nil {
		return sales.Totals{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	inputs := make([]sales.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		inputs[i] = sales.LineInput{Quantity: l.Quantity, UnitPrice: l.UnitCost, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent}
	}
	totals, err := sales.CalculateTotals(inputs)
	if err != nil {
		return sales.Totals{}, err
	}
	return totals, totals.Verify(req.Totals)
}

func applyOrder(po *PurchaseOrder, req PORequest, totals sales.Totals) {
	po.VendorID = req.VendorID
	po.ExpectedDate = req.ExpectedDate
	po.Notes = req.Notes
	po.Subtotal = totals.Subtotal
	po.Discount = totals.Discount
	po.Tax = totals.Tax
	po.Total = totals.GrandTotal
}

func insertPOItems(ctx context.Context, tx TxRepository, poID string, lines []POLineRequest, totals sales.Totals) ([]POItem, error) {
	items := make([]POItem, 0, len(lines))
	for i, l := range lines {
		it, err := tx.InsertPOItem(ctx, POItem{
			POID: poID, LineNo: i + 1, ProductID: l.ProductID, Description: l.Description, Quantity: l.Quantity,
			UnitCost: l.UnitCost, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent,
			TaxAmount: totals.Lines[i].Tax, LineTotal: totals.Lines[i].Total,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func requireActiveVendor(ctx context.Context, tx TxRepository, vendorID string) error {
	active, err := tx.VendorActive(ctx, vendorID)
	if err != nil {
		return err
	}
	if !active {
		return ErrVendorInactive
	}
	return nil
}

// CreatePurchaseOrder drafts a purchase order with server computed totals.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actorID string, req PORequest) (PurchaseOrder, error) {
	totals, err := s.priceOrder(req)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		if err := requireActiveVendor(ctx, sc.Orders, req.VendorID); err != nil {
			return err
		}
		number, err := sc.Numbers.Next(ctx, settings.SequencePurchaseOrder)
		if err != nil {
			return err
		}
		draft := PurchaseOrder{Number: number, Status: POStatusDraft, CreatedBy: actorID}
		applyOrder(&draft, req, totals)
		if po, err = sc.Orders.InsertPO(ctx, draft); err != nil {
			return err
		}
		if po.Items, err = insertPOItems(ctx, sc.Orders, po.ID, req.Lines, totals); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, "purchase_order.created", po.ID, map[string]any{"number": po.Number, "total": po.Total.String()})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// UpdatePurchaseOrder replaces the content of a draft order.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, actorID, id string, req PORequest) (PurchaseOrder, error) {
	totals, err := s.priceOrder(req)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		current, err := sc.Orders.LockPO(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != POStatusDraft {
			return ErrInvalidState
		}
		if err := requireActiveVendor(ctx, sc.Orders, req.VendorID); err != nil {
			return err
		}
		po = current
		applyOrder(&po, req, totals)
		if err := sc.Orders.UpdatePODraft(ctx, po); err != nil {
			return err
		}
		if err := sc.Orders.DeletePOItems(ctx, id); err != nil {
			return err
		}
		if po.Items, err = insertPOItems(ctx, sc.Orders, id, req.Lines, totals); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, "purchase_order.updated", id, nil)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, actorID, id string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actorID, id, "purchase_order.submitted", func(ctx context.Context, tx TxRepository, po PurchaseOrder) error {
		if po.Status != POStatusDraft {
			return ErrInvalidState
		}
		return tx.SetPOStatus(ctx, id, POStatusSubmitted)
	})
}

// ApprovePurchaseOrder marks a submitted order approved.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, actorID, id string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actorID, id, "purchase_order.approved", func(ctx context.Context, tx TxRepository, po PurchaseOrder) error {
		if po.Status != POStatusSubmitted {
			return ErrInvalidState
		}
		if err := tx.SetPOStatus(ctx, id, POStatusApproved); err != nil {
			return err
		}
		return tx.SetPOApproval(ctx, id, actorID, s.now().UTC())
	})
}

// CancelPurchaseOrder cancels an order nothing was received against.
func (s *Service) CancelPurchaseOrder(ctx context.Context, actorID, id string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actorID, id, "purchase_order.cancelled", func(ctx context.Context, tx TxRepository, po PurchaseOrder) error {
		switch po.Status {
		case POStatusDraft, POStatusSubmitted, POStatusApproved:
		default:
			return ErrInvalidState
		}
		for _, it := range po.Items {
			if it.ReceivedQty.IsPositive() {
				return ErrInvalidState
			}
		}
		return tx.SetPOStatus(ctx, id, POStatusCancelled)
	})
}

func (s *Service) transitionPO(ctx context.Context, actorID, id, action string, fn func(context.Context, TxRepository, PurchaseOrder) error) (PurchaseOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		po, err := sc.Orders.LockPO(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, sc.Orders, po); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, action, id, map[string]any{"number": po.Number})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return s.repo.GetPO(ctx, id)
}

// DeletePurchaseOrder removes a draft order.
func (s *Service) DeletePurchaseOrder(ctx context.Context, actorID, id string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		po, err := sc.Orders.LockPO(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return ErrInvalidState
		}
		if err := sc.Orders.DeletePODraft(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, "purchase_order.deleted", id, map[string]any{"number": po.Number})
	})
}

// GetPurchaseOrder returns an order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders returns a page of orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, f POFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListPOs(ctx, f)
}

// CreateGoodsReceipt drafts a receipt against an approved order.
func (s *Service) CreateGoodsReceipt(ctx context.Context, actorID, poID string, req GRNRequest) (GoodsReceipt, error) {
	if err := s.validate.Struct(req); err != nil {
		return GoodsReceipt{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.LocationID == "" {
		req.LocationID = inventory.DefaultLocation
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = s.now().UTC()
	}
	var grn GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		po, err := sc.Orders.LockPO(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved && po.Status != POStatusPartiallyReceived {
			return ErrInvalidState
		}
		byID := make(map[string]POItem, len(po.Items))
		for _, it := range po.Items {
			byID[it.ID] = it
		}
		items := make([]GRNItem, 0, len(req.Lines))
		for _, l := range req.Lines {
			it, ok := byID[l.POItemID]
			if !ok {
				return fmt.Errorf("%w: item %s is not on this order", ErrValidation, l.POItemID)
			}
			if !l.Quantity.IsPositive() {
				return fmt.Errorf("%w: quantity must be positive", ErrValidation)
			}
			if l.Quantity.GreaterThan(it.Outstanding()) {
				return ErrOverReceipt
			}
			cost := it.UnitCost
			if l.UnitCost != nil {
				if l.UnitCost.IsNegative() {
					return fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
				}
				cost = *l.UnitCost
			}
			items = append(items, GRNItem{POItemID: it.ID, ProductID: it.ProductID, Quantity: l.Quantity, UnitCost: cost})
		}
		number, err := sc.Numbers.Next(ctx, settings.SequenceGRN)
		if err != nil {
			return err
		}
		if grn, err = sc.Orders.InsertGRN(ctx, GoodsReceipt{
			Number: number, POID: po.ID, VendorID: po.VendorID, LocationID: req.LocationID, Status: GRNStatusDraft,
			ReceivedAt: req.ReceivedAt, Notes: req.Notes, CreatedBy: actorID,
		}); err != nil {
			return err
		}
		for _, it := range items {
			it.GRNID = grn.ID
			saved, err := sc.Orders.InsertGRNItem(ctx, it)
			if err != nil {
				return err
			}
			grn.Items = append(grn.Items, saved)
		}
		return s.record(ctx, sc, actorID, "grn.created", grn.ID, map[string]any{"number": grn.Number, "purchase_order": po.Number})
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

// PostGoodsReceipt books received stock. Received quantities, stock
// balances and the order status change in one transaction; a receipt is
// posted at most once.
func (s *Service) PostGoodsReceipt(ctx context.Context, actorID, grnID string) (GoodsReceipt, error) {
	key := "GRN:" + grnID
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, grnIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return GoodsReceipt{}, ErrAlreadyPosted
			}
			return GoodsReceipt{}, err
		}
		inserted = true
	}
	var postings []inventory.Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		grn, err := sc.Orders.LockGRN(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusDraft {
			return ErrAlreadyPosted
		}
		po, err := sc.Orders.LockPO(ctx, grn.POID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved && po.Status != POStatusPartiallyReceived {
			return ErrInvalidState
		}
		if err := sc.Orders.MarkGRNPosted(ctx, grnID, s.now().UTC()); err != nil {
			return err
		}
		received := make(map[string]POItem, len(po.Items))
		for _, it := range po.Items {
			received[it.ID] = it
		}
		for _, line := range grn.Items {
			if err := sc.Orders.AddReceived(ctx, line.POItemID, line.Quantity); err != nil {
				return err
			}
			it := received[line.POItemID]
			it.ReceivedQty = it.ReceivedQty.Add(line.Quantity)
			received[line.POItemID] = it

			posting, err := s.stock.Apply(ctx, sc.Inventory, inventory.MovementParams{
				Code:       fmt.Sprintf("%s-%s", grn.Number, line.ID),
				Type:       inventory.MovementIn,
				LocationID: grn.LocationID,
				ProductID:  line.ProductID,
				Qty:        line.Quantity,
				UnitCost:   line.UnitCost,
				Note:       "GRN " + grn.Number,
				ActorID:    actorID,
				RefModule:  "procurement",
				RefID:      grn.ID,
			})
			if err != nil {
				return err
			}
			postings = append(postings, posting)
		}
		status := POStatusReceived
		for _, it := range received {
			if it.Outstanding().IsPositive() {
				status = POStatusPartiallyReceived
				break
			}
		}
		if err := sc.Orders.SetPOStatus(ctx, po.ID, status); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, "grn.posted", grnID, map[string]any{"number": grn.Number, "purchase_order": po.Number})
	})
	if err != nil {
		if inserted {
			if derr := s.idempotency.Delete(ctx, key, grnIdempotencyModule); derr != nil {
				s.logger.Warn("release grn idempotency key", slog.String("grn_id", grnID), slog.Any("error", derr))
			}
		}
		return GoodsReceipt{}, err
	}
	s.stock.Publish(ctx, postings...)
	return s.repo.GetGRN(ctx, grnID)
}

// CancelGoodsReceipt discards a draft receipt.
func (s *Service) CancelGoodsReceipt(ctx context.Context, actorID, grnID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		grn, err := sc.Orders.LockGRN(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusDraft {
			return ErrInvalidState
		}
		if err := sc.Orders.SetGRNStatus(ctx, grnID, GRNStatusCancelled); err != nil {
			return err
		}
		return s.record(ctx, sc, actorID, "grn.cancelled", grnID, map[string]any{"number": grn.Number})
	})
}

// GetGoodsReceipt returns one receipt.
func (s *Service) GetGoodsReceipt(ctx context.Context, id string) (GoodsReceipt, error) {
	return s.repo.GetGRN(ctx, id)
}

// GoodsReceipts lists receipts of an order.
func (s *Service) GoodsReceipts(ctx context.Context, poID string) ([]GoodsReceipt, error) {
	if _, err := s.repo.GetPO(ctx, poID); err != nil {
		return nil, err
	}
	return s.repo.ListGRNs(ctx, poID)
}

func (s *Service) record(ctx context.Context, sc TxScope, actorID, action, entityID string, meta map[string]any) error {
	entity := "purchase_order"
	if strings.HasPrefix(action, "grn.") {
		entity = "grn"
	}
	return sc.Activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta})
}
