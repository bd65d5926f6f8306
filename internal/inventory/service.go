package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListBalances(ctx context.Context, filter BalanceFilters) ([]Balance, error)
	ProductBalances(ctx context.Context, productID string) ([]Balance, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	activity    ActivityRecorder
	idempotency *shared.IdempotencyStore
	allowNeg    bool
	integration IntegrationHandler
	validate    *validator.Validate
	logger      *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, activity ActivityRecorder, idem *shared.IdempotencyStore, cfg ServiceConfig, integration IntegrationHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		activity:    activity,
		idempotency: idem,
		allowNeg:    cfg.AllowNegativeStock,
		integration: integration,
		validate:    validator.New(),
		logger:      logger,
	}
}

// MovementParams describes one signed stock change.
type MovementParams struct {
	Code       string
	Type       MovementType
	LocationID string
	ProductID  string
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	Note       string
	ActorID    string
	RefModule  string
	RefID      string
}

// Posting is a movement applied inside a transaction, published once the
// transaction commits.
type Posting struct {
	Params MovementParams
	Card   StockCardEntry
}

// PostInbound posts an inbound movement.
func (s *Service) PostInbound(ctx context.Context, in InboundInput) (StockCardEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return StockCardEntry{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Qty.IsPositive() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.post(ctx, MovementParams{
		Code:       in.Code,
		Type:       MovementIn,
		LocationID: in.LocationID,
		ProductID:  in.ProductID,
		Qty:        in.Qty,
		UnitCost:   in.UnitCost,
		Note:       in.Note,
		ActorID:    in.ActorID,
		RefModule:  in.RefModule,
		RefID:      in.RefID,
	})
}

// PostAdjustment posts a signed adjustment.
func (s *Service) PostAdjustment(ctx context.Context, in AdjustmentInput) (StockCardEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return StockCardEntry{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Qty.IsZero() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if in.Qty.IsPositive() && in.UnitCost.IsNegative() {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.post(ctx, MovementParams{
		Code:       in.Code,
		Type:       MovementAdjust,
		LocationID: in.LocationID,
		ProductID:  in.ProductID,
		Qty:        in.Qty,
		UnitCost:   in.UnitCost,
		Note:       in.Note,
		ActorID:    in.ActorID,
		RefModule:  in.RefModule,
		RefID:      in.RefID,
	})
}

// PostTransfer moves stock between locations as an OUT and an IN in one
// transaction. The inbound side carries the source's average cost.
func (s *Service) PostTransfer(ctx context.Context, in TransferInput) (StockCardEntry, StockCardEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return StockCardEntry{}, StockCardEntry{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	from, to := normalizeLocation(in.From), normalizeLocation(in.To)
	if from == to {
		return StockCardEntry{}, StockCardEntry{}, fmt.Errorf("%w: source and destination must differ", ErrInvalidInput)
	}
	if !in.Qty.IsPositive() {
		return StockCardEntry{}, StockCardEntry{}, ErrInvalidQuantity
	}
	code := in.Code
	if code == "" {
		code = fmt.Sprintf("TRF-%d", time.Now().UnixNano())
	}
	var out, inbound Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.Apply(ctx, tx, MovementParams{
			Code: code + "-OUT", Type: MovementTransfer, LocationID: from, ProductID: in.ProductID,
			Qty: in.Qty.Neg(), Note: fmt.Sprintf("Transfer to %s: %s", to, in.Note), ActorID: in.ActorID,
		})
		if err != nil {
			return err
		}
		inbound, err = s.Apply(ctx, tx, MovementParams{
			Code: code + "-IN", Type: MovementTransfer, LocationID: to, ProductID: in.ProductID,
			Qty: in.Qty, UnitCost: out.Card.UnitCost, Note: fmt.Sprintf("Transfer from %s: %s", from, in.Note), ActorID: in.ActorID,
		})
		return err
	})
	if err != nil {
		return StockCardEntry{}, StockCardEntry{}, err
	}
	s.Publish(ctx, out, inbound)
	return out.Card, inbound.Card, nil
}

// SetLevel moves the stock of sku at location to qty, posting the difference
// as a SYNC movement. It returns a zero entry when the level already matches.
func (s *Service) SetLevel(ctx context.Context, actorID, sku, location string, qty decimal.Decimal, refID string) (StockCardEntry, error) {
	if strings.TrimSpace(sku) == "" {
		return StockCardEntry{}, fmt.Errorf("%w: sku required", ErrInvalidInput)
	}
	if qty.IsNegative() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	location = normalizeLocation(location)
	var posting Posting
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		productID, err := tx.ProductIDBySKU(ctx, sku)
		if err != nil {
			return err
		}
		bal, err := tx.GetBalanceForUpdate(ctx, location, productID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		delta := qty.Sub(bal.Qty)
		if delta.IsZero() {
			return nil
		}
		changed = true
		posting, err = s.Apply(ctx, tx, MovementParams{
			Type: MovementSync, LocationID: location, ProductID: productID, Qty: delta,
			UnitCost: bal.AvgCost, Note: "external stock sync", ActorID: actorID, RefModule: "webhook", RefID: refID,
		})
		return err
	})
	if err != nil || !changed {
		return StockCardEntry{}, err
	}
	s.Publish(ctx, posting)
	s.record(ctx, posting.Params)
	return posting.Card, nil
}

// Apply posts one movement through tx. The caller owns the transaction and
// calls Publish after it commits.
func (s *Service) Apply(ctx context.Context, tx TxRepository, p MovementParams) (Posting, error) {
	if p.Qty.IsZero() {
		return Posting{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(p.ProductID) == "" {
		return Posting{}, fmt.Errorf("%w: product required", ErrInvalidInput)
	}
	p.LocationID = normalizeLocation(p.LocationID)
	now := time.Now().UTC()
	if p.Code == "" {
		p.Code = fmt.Sprintf("%s-%d", p.Type, now.UnixNano())
	}

	balance, err := tx.GetBalanceForUpdate(ctx, p.LocationID, p.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Posting{}, err
	}
	newQty := balance.Qty.Add(p.Qty)
	if !s.allowNeg && newQty.IsNegative() {
		return Posting{}, ErrNegativeStock
	}

	var unitCost, newAvg decimal.Decimal
	if p.Qty.IsPositive() {
		unitCost = p.UnitCost
		total := balance.Qty.Mul(balance.AvgCost).Add(p.Qty.Mul(unitCost))
		if !newQty.IsZero() {
			newAvg = total.DivRound(newQty, 4)
		}
	} else {
		unitCost = balance.AvgCost
		if newQty.IsPositive() {
			newAvg = balance.AvgCost
		}
	}

	movementID, err := tx.InsertMovement(ctx, Movement{
		Code:       p.Code,
		Type:       p.Type,
		LocationID: p.LocationID,
		ProductID:  p.ProductID,
		Qty:        p.Qty,
		UnitCost:   unitCost,
		RefModule:  p.RefModule,
		RefID:      p.RefID,
		Note:       p.Note,
		PostedAt:   now,
		CreatedBy:  p.ActorID,
	})
	if err != nil {
		return Posting{}, err
	}
	committed, err := tx.ApplyDelta(ctx, p.LocationID, p.ProductID, p.Qty, newAvg, s.allowNeg)
	if err != nil {
		return Posting{}, err
	}
	card := StockCardEntry{
		Code:        p.Code,
		Type:        p.Type,
		PostedAt:    now,
		BalanceQty:  committed,
		UnitCost:    unitCost,
		BalanceCost: newAvg,
		RefModule:   p.RefModule,
		RefID:       p.RefID,
		Note:        p.Note,
	}
	if p.Qty.IsPositive() {
		card.QtyIn = p.Qty
	} else {
		card.QtyOut = p.Qty.Neg()
	}
	if err := tx.InsertCardEntry(ctx, card, p.LocationID, p.ProductID, movementID); err != nil {
		return Posting{}, err
	}
	return Posting{Params: p, Card: card}, nil
}

// Publish forwards committed postings to the integration handler.
func (s *Service) Publish(ctx context.Context, postings ...Posting) {
	if s.integration == nil {
		return
	}
	for _, p := range postings {
		evt := MovementPostedEvent{
			Code:       p.Card.Code,
			Type:       p.Card.Type,
			LocationID: p.Params.LocationID,
			ProductID:  p.Params.ProductID,
			Qty:        p.Params.Qty,
			Balance:    p.Card.BalanceQty,
			PostedAt:   p.Card.PostedAt,
		}
		if err := s.integration.HandleMovementPosted(ctx, evt); err != nil {
			s.logger.Warn("inventory: integration hook", slog.String("code", evt.Code), slog.Any("error", err))
		}
	}
}

// GetStockCard lists stock card entries.
func (s *Service) GetStockCard(ctx context.Context, f StockCardFilter) ([]StockCardEntry, error) {
	if f.ProductID == "" {
		return nil, fmt.Errorf("%w: product required", ErrInvalidInput)
	}
	f.LocationID = normalizeLocation(f.LocationID)
	return s.repo.GetStockCard(ctx, f)
}

// ListBalances lists stock balances.
func (s *Service) ListBalances(ctx context.Context, f BalanceFilters) ([]Balance, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.LocationID != "" {
		f.LocationID = normalizeLocation(f.LocationID)
	}
	return s.repo.ListBalances(ctx, f)
}

// ProductBalances returns a product's balances at every location.
func (s *Service) ProductBalances(ctx context.Context, productID string) ([]Balance, error) {
	return s.repo.ProductBalances(ctx, productID)
}

func (s *Service) post(ctx context.Context, p MovementParams) (StockCardEntry, error) {
	key := ""
	if s.idempotency != nil && p.Code != "" {
		key = fmt.Sprintf("%s:%s:%s", p.Type, p.Code, normalizeLocation(p.LocationID))
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return StockCardEntry{}, err
		}
	}
	var posting Posting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posting, err = s.Apply(ctx, tx, p)
		return err
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key, "inventory")
		}
		return StockCardEntry{}, err
	}
	s.Publish(ctx, posting)
	s.record(ctx, posting.Params)
	return posting.Card, nil
}

func (s *Service) record(ctx context.Context, p MovementParams) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:  p.ActorID,
		Action:   "inventory." + strings.ToLower(string(p.Type)),
		Entity:   "stock_movement",
		EntityID: p.Code,
		Meta: map[string]any{
			"location_id": p.LocationID,
			"product_id":  p.ProductID,
			"qty":         p.Qty.String(),
			"note":        p.Note,
		},
	})
	if err != nil {
		s.logger.Warn("inventory: activity log", slog.Any("error", err))
	}
}

func normalizeLocation(loc string) string {
	loc = strings.ToUpper(strings.TrimSpace(loc))
	if loc == "" {
		return DefaultLocation
	}
	return loc
}
