package integration

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/loyalty"
	"github.com/aurum-erp/aurum/internal/sales"
)

type fakeLedger struct {
	balance map[string]int64
	applied map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balance: map[string]int64{}, applied: map[string]bool{}}
}

func (f *fakeLedger) Accrue(_ context.Context, _, customerID string, spend decimal.Decimal, refType, refID string) (loyalty.Transaction, error) {
	key := refType + ":" + refID
	if f.applied[key] {
		return loyalty.Transaction{}, loyalty.ErrAlreadyApplied
	}
	f.applied[key] = true
	points := loyalty.DefaultRules().PointsFor(spend)
	f.balance[customerID] += points
	return loyalty.Transaction{CustomerID: customerID, Type: loyalty.TxEarn, Points: points}, nil
}

func (f *fakeLedger) Reverse(_ context.Context, _, customerID string, points int64, refType, refID string) (loyalty.Transaction, error) {
	key := refType + ":" + refID
	if f.applied[key] {
		return loyalty.Transaction{}, loyalty.ErrAlreadyApplied
	}
	f.applied[key] = true
	applied := min(points, f.balance[customerID])
	f.balance[customerID] -= applied
	return loyalty.Transaction{CustomerID: customerID, Type: loyalty.TxReverse, Points: -applied}, nil
}

type pointsMap map[string]int64

func (p pointsMap) SetPointsEarned(_ context.Context, saleID string, points int64) error {
	p[saleID] = points
	return nil
}

type counters struct {
	movements map[string]int
	events    map[string]int
	points    map[string]int64
}

func newCounters() *counters {
	return &counters{movements: map[string]int{}, events: map[string]int{}, points: map[string]int64{}}
}

func (c *counters) StockMovement(kind string)               { c.movements[kind]++ }
func (c *counters) SaleEvent(event string)                  { c.events[event]++ }
func (c *counters) LoyaltyPoints(kind string, points int64) { c.points[kind] += abs(points) }

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestSaleAccrualIsOncePerSale(t *testing.T) {
	ledger := newFakeLedger()
	points := pointsMap{}
	metrics := newCounters()
	hooks := NewHooks(ledger, points, metrics, nil)
	ctx := context.Background()

	evt := sales.SaleCompletedEvent{SaleID: "s1", CustomerID: "c1", Total: decimal.RequireFromString("2060")}
	require.NoError(t, hooks.HandleSaleCompleted(ctx, evt))
	require.NoError(t, hooks.HandleSaleCompleted(ctx, evt))

	assert.Equal(t, int64(20), ledger.balance["c1"])
	assert.Equal(t, int64(20), points["s1"])
	assert.Equal(t, 2, metrics.events["completed"])
	assert.Equal(t, int64(20), metrics.points["earn"])

	require.NoError(t, hooks.HandleSaleCompleted(ctx, sales.SaleCompletedEvent{SaleID: "s2", Total: decimal.NewFromInt(500)}))
	assert.NotContains(t, points, "s2")
}

func TestReturnReversalIsClamped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance["c1"] = 4
	metrics := newCounters()
	hooks := NewHooks(ledger, pointsMap{}, metrics, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleSaleReturned(ctx, sales.SaleReturnedEvent{ReturnID: "r1", CustomerID: "c1", Points: 10}))
	assert.Equal(t, int64(0), ledger.balance["c1"])
	assert.Equal(t, int64(4), metrics.points["reverse"])

	require.NoError(t, hooks.HandleSaleReturned(ctx, sales.SaleReturnedEvent{ReturnID: "r1", CustomerID: "c1", Points: 10}))
	require.NoError(t, hooks.HandleSaleReturned(ctx, sales.SaleReturnedEvent{ReturnID: "r2", CustomerID: "c1"}))
	assert.Equal(t, 3, metrics.events["returned"])
}

func TestVoidReversesRemainingPointsOnce(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance["c1"] = 50
	metrics := newCounters()
	hooks := NewHooks(ledger, pointsMap{}, metrics, nil)
	ctx := context.Background()

	evt := sales.SaleVoidedEvent{SaleID: "s1", CustomerID: "c1", Points: 20}
	require.NoError(t, hooks.HandleSaleVoided(ctx, evt))
	require.NoError(t, hooks.HandleSaleVoided(ctx, evt))
	assert.Equal(t, int64(30), ledger.balance["c1"])
	assert.Equal(t, int64(20), metrics.points["reverse"])
	assert.Equal(t, 2, metrics.events["voided"])

	require.NoError(t, hooks.HandleSaleVoided(ctx, sales.SaleVoidedEvent{SaleID: "s2", CustomerID: "c1"}))
	assert.Equal(t, int64(30), ledger.balance["c1"])
}

func TestMovementHookCounts(t *testing.T) {
	metrics := newCounters()
	hooks := NewHooks(nil, nil, metrics, nil)
	require.NoError(t, hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{Type: inventory.MovementSale, Balance: decimal.NewFromInt(-1)}))
	assert.Equal(t, 1, metrics.movements["SALE"])

	var nilHooks *Hooks
	require.NoError(t, nilHooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{}))
}
