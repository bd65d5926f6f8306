package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/loyalty"
	"github.com/aurum-erp/aurum/internal/sales"
)

// LoyaltyLedger exposes the points operations sales trigger.
type LoyaltyLedger interface {
	Accrue(ctx context.Context, actorID, customerID string, spend decimal.Decimal, refType, refID string) (loyalty.Transaction, error)
	Reverse(ctx context.Context, actorID, customerID string, points int64, refType, refID string) (loyalty.Transaction, error)
}

// PointsStore remembers what a sale earned.
type PointsStore interface {
	SetPointsEarned(ctx context.Context, saleID string, points int64) error
}

// Recorder receives domain counters.
type Recorder interface {
	StockMovement(kind string)
	SaleEvent(event string)
	LoyaltyPoints(kind string, points int64)
}

// Reference types written on loyalty transactions.
const (
	RefSale   = "sale"
	RefReturn = "sale_return"
	RefVoid   = "sale_void"
)

// Hooks wires committed events from operational modules into loyalty and
// metrics.
type Hooks struct {
	loyalty LoyaltyLedger
	points  PointsStore
	metrics Recorder
	logger  *slog.Logger
}

// NewHooks constructs integration hooks. Any dependency may be nil.
func NewHooks(ledger LoyaltyLedger, points PointsStore, metrics Recorder, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{loyalty: ledger, points: points, metrics: metrics, logger: logger}
}

// HandleSaleCompleted accrues points for the customer of a sale and stores
// the result on the sale. Redelivery of the same sale earns nothing more.
func (h *Hooks) HandleSaleCompleted(ctx context.Context, evt sales.SaleCompletedEvent) error {
	if h == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.SaleEvent("completed")
	}
	if h.loyalty == nil || evt.CustomerID == "" {
		return nil
	}
	tx, err := h.loyalty.Accrue(ctx, evt.ActorID, evt.CustomerID, evt.Total, RefSale, evt.SaleID)
	if errors.Is(err, loyalty.ErrAlreadyApplied) {
		return nil
	}
	if err != nil {
		return err
	}
	if tx.Points == 0 {
		return nil
	}
	if h.metrics != nil {
		h.metrics.LoyaltyPoints(string(loyalty.TxEarn), tx.Points)
	}
	if h.points == nil {
		return nil
	}
	return h.points.SetPointsEarned(ctx, evt.SaleID, tx.Points)
}

// HandleSaleReturned reverses the points share of a return.
func (h *Hooks) HandleSaleReturned(ctx context.Context, evt sales.SaleReturnedEvent) error {
	if h == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.SaleEvent("returned")
	}
	if h.loyalty == nil || evt.CustomerID == "" || evt.Points <= 0 {
		return nil
	}
	tx, err := h.loyalty.Reverse(ctx, evt.ActorID, evt.CustomerID, evt.Points, RefReturn, evt.ReturnID)
	if errors.Is(err, loyalty.ErrAlreadyApplied) {
		return nil
	}
	if err != nil {
		return err
	}
	if tx.Points != -evt.Points {
		h.logger.Info("integration: partial points reversal",
			slog.String("return", evt.Number), slog.Int64("wanted", evt.Points), slog.Int64("reversed", -tx.Points))
	}
	if h.metrics != nil {
		h.metrics.LoyaltyPoints(string(loyalty.TxReverse), tx.Points)
	}
	return nil
}

// HandleSaleVoided reverses whatever points a voided sale still holds.
func (h *Hooks) HandleSaleVoided(ctx context.Context, evt sales.SaleVoidedEvent) error {
	if h == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.SaleEvent("voided")
	}
	if h.loyalty == nil || evt.CustomerID == "" || evt.Points <= 0 {
		return nil
	}
	tx, err := h.loyalty.Reverse(ctx, evt.ActorID, evt.CustomerID, evt.Points, RefVoid, evt.SaleID)
	if errors.Is(err, loyalty.ErrAlreadyApplied) {
		return nil
	}
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.LoyaltyPoints(string(loyalty.TxReverse), tx.Points)
	}
	return nil
}

// HandleMovementPosted counts posted stock movements and flags stock that
// went negative.
func (h *Hooks) HandleMovementPosted(_ context.Context, evt inventory.MovementPostedEvent) error {
	if h == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.StockMovement(string(evt.Type))
	}
	if evt.Balance.IsNegative() {
		h.logger.Warn("integration: negative stock",
			slog.String("product", evt.ProductID), slog.String("location", evt.LocationID), slog.String("balance", evt.Balance.String()))
	}
	return nil
}
