package sales

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/register"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type recordingHooks struct {
	completed []SaleCompletedEvent
	returned  []SaleReturnedEvent
	voided    []SaleVoidedEvent
}

func (h *recordingHooks) HandleSaleCompleted(_ context.Context, evt SaleCompletedEvent) error {
	h.completed = append(h.completed, evt)
	return nil
}

func (h *recordingHooks) HandleSaleReturned(_ context.Context, evt SaleReturnedEvent) error {
	h.returned = append(h.returned, evt)
	return nil
}

func (h *recordingHooks) HandleSaleVoided(_ context.Context, evt SaleVoidedEvent) error {
	h.voided = append(h.voided, evt)
	return nil
}

type receiptSink struct{ receipts []Receipt }

func (r *receiptSink) EnqueueReceipt(_ context.Context, rc Receipt) error {
	r.receipts = append(r.receipts, rc)
	return nil
}

type phoneBook map[string]string

func (p phoneBook) ContactPhone(_ context.Context, id string) (string, error) { return p[id], nil }

type fixture struct {
	repo     *memRepo
	svc      *Service
	hooks    *recordingHooks
	receipts *receiptSink
	shiftID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	repo.st.products["p1"] = ProductRef{ID: "p1", SKU: "BANGLE-22K", Name: "Bangle 22K", Price: d("1000"), TaxRate: d("3"), IsActive: true}
	repo.st.products["p2"] = ProductRef{ID: "p2", SKU: "RING-18K", Name: "Ring 18K", Price: d("5000"), TaxRate: d("3"), IsActive: true}
	repo.st.products["p3"] = ProductRef{ID: "p3", SKU: "OLD-1", Name: "Retired", Price: d("10"), IsActive: false}
	repo.st.balances[inventory.DefaultLocation+"|p1"] = inventory.Balance{LocationID: inventory.DefaultLocation, ProductID: "p1", Qty: d("5"), AvgCost: d("800")}
	repo.st.balances[inventory.DefaultLocation+"|p2"] = inventory.Balance{LocationID: inventory.DefaultLocation, ProductID: "p2", Qty: d("2"), AvgCost: d("4000")}
	repo.st.shifts["shift-open"] = register.Shift{ID: "shift-open", Register: "R1", Status: register.ShiftOpen, OpeningFloat: d("1000"), ExpectedCash: d("1000")}
	repo.st.shifts["shift-closed"] = register.Shift{ID: "shift-closed", Register: "R2", Status: register.ShiftClosed}

	hooks := &recordingHooks{}
	receipts := &receiptSink{}
	svc := NewService(repo, Dependencies{
		Stock:       inventory.NewService(nil, nil, nil, inventory.ServiceConfig{}, nil, nil),
		Drawer:      register.NewService(nil, nil, nil),
		Integration: hooks,
		Receipts:    receipts,
		Customers:   phoneBook{"c1": "+919876543210"},
	}, nil)
	return &fixture{repo: repo, svc: svc, hooks: hooks, receipts: receipts, shiftID: "shift-open"}
}

func TestCalculateTotals(t *testing.T) {
	totals, err := CalculateTotals([]LineInput{
		{Quantity: d("2"), UnitPrice: d("1000"), DiscountPercent: d("10"), TaxPercent: d("3")},
		{Quantity: d("1"), UnitPrice: d("499.99"), TaxPercent: d("3")},
	})
	require.NoError(t, err)
	assert.Equal(t, "2499.99", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "200.00", totals.Discount.StringFixed(2))
	assert.Equal(t, "69.00", totals.Tax.StringFixed(2))
	assert.Equal(t, "2368.99", totals.GrandTotal.StringFixed(2))
	assert.Equal(t, "1854.00", totals.Lines[0].Total.StringFixed(2))

	require.NoError(t, totals.Verify(&ClaimedTotals{GrandTotal: dp("2368.99"), Tax: dp("69")}))
	require.ErrorIs(t, totals.Verify(&ClaimedTotals{GrandTotal: dp("2300")}), ErrTotalsMismatch)

	_, err = CalculateTotals(nil)
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = CalculateTotals([]LineInput{{Quantity: d("0"), UnitPrice: d("1")}})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = CalculateTotals([]LineInput{{Quantity: d("1"), UnitPrice: d("1"), DiscountPercent: d("120")}})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestCreateSalePostsStockDrawerAndFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		CustomerID:    "c1",
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("2")}},
		Totals:        &ClaimedTotals{GrandTotal: dp("2060")},
	})
	require.NoError(t, err)
	assert.Equal(t, "SAL-000001", sale.Number)
	assert.Equal(t, StatusCompleted, sale.Status)
	assert.Equal(t, "2060.00", sale.Total.StringFixed(2))
	require.Len(t, sale.Items, 1)
	assert.Equal(t, "800", sale.Items[0].CostPrice.String())
	assert.Equal(t, "BANGLE-22K", sale.Items[0].SKU)

	assert.Equal(t, "3", f.repo.balance("p1").String())
	assert.Equal(t, "3060", f.repo.st.shifts[f.shiftID].ExpectedCash.String())
	require.Len(t, f.repo.st.ops, 1)
	assert.Equal(t, register.OpSale, f.repo.st.ops[0].Type)
	require.Len(t, f.repo.st.activity, 1)
	assert.Equal(t, "sale.created", f.repo.st.activity[0].Action)

	require.Len(t, f.hooks.completed, 1)
	assert.Equal(t, "c1", f.hooks.completed[0].CustomerID)
	require.Len(t, f.receipts.receipts, 1)
	assert.Equal(t, "+919876543210", f.receipts.receipts[0].Phone)
	assert.Equal(t, "Bangle 22K", f.receipts.receipts[0].Lines[0].Name)
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("1")}, {ProductID: "p2", Quantity: d("3")}},
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	assert.Empty(t, f.repo.st.sales)
	assert.Equal(t, "5", f.repo.balance("p1").String())
	assert.Equal(t, "1000", f.repo.st.shifts[f.shiftID].ExpectedCash.String())
	assert.Empty(t, f.repo.st.seq)

	_, err = f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       "shift-closed",
		PaymentMethod: PaymentCard,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("1")}},
	})
	require.ErrorIs(t, err, register.ErrShiftClosed)
	assert.Equal(t, "5", f.repo.balance("p1").String())

	_, err = f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("1")}},
		Totals:        &ClaimedTotals{GrandTotal: dp("999")},
	})
	require.ErrorIs(t, err, ErrTotalsMismatch)

	_, err = f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p3", Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrProductUnavailable)

	_, err = f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{ShiftID: f.shiftID, PaymentMethod: "barter",
		Lines: []LineRequest{{ProductID: "p1", Quantity: d("1")}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.hooks.completed)
}

func TestReturnRestocksRefundsAndReversesPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		CustomerID:    "c1",
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("2")}},
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPointsEarned(ctx, sale.ID, 20))
	itemID := sale.Items[0].ID

	rt, err := f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		ShiftID: f.shiftID,
		Reason:  "size",
		Lines:   []ReturnLine{{SaleItemID: itemID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "RET-000001", rt.Number)
	assert.Equal(t, "1030.00", rt.Refund.StringFixed(2))
	assert.Equal(t, int64(10), rt.Points)
	assert.Equal(t, "4", f.repo.balance("p1").String())
	assert.Equal(t, "2030", f.repo.st.shifts[f.shiftID].ExpectedCash.String())
	assert.Equal(t, StatusPartiallyReturned, f.repo.st.sales[sale.ID].Status)
	require.Len(t, f.hooks.returned, 1)
	assert.Equal(t, int64(10), f.hooks.returned[0].Points)

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "again",
		Lines:  []ReturnLine{{SaleItemID: itemID, Quantity: d("2")}},
	})
	require.ErrorIs(t, err, ErrReturnExceedsSold)
	assert.Equal(t, "4", f.repo.balance("p1").String())

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "wrong item",
		Lines:  []ReturnLine{{SaleItemID: "nope", Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "rest",
		Lines:  []ReturnLine{{SaleItemID: itemID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, f.repo.st.sales[sale.ID].Status)
	assert.Equal(t, "2060", f.repo.st.sales[sale.ID].RefundedTotal.String())
	assert.Equal(t, "2030", f.repo.st.shifts[f.shiftID].ExpectedCash.String(), "refund without a shift leaves drawers alone")

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "late",
		Lines:  []ReturnLine{{SaleItemID: itemID, Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidStatus)

	returns, err := f.svc.Returns(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, returns, 2)
}

func TestVoidRestocksRemainingAndReversesStandingPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		CustomerID:    "c1",
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("2")}, {ProductID: "p2", Quantity: d("1")}},
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetPointsEarned(ctx, sale.ID, 60))
	assert.Equal(t, "3", f.repo.balance("p1").String())
	assert.Equal(t, "1", f.repo.balance("p2").String())

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "size",
		Lines:  []ReturnLine{{SaleItemID: sale.Items[0].ID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "4", f.repo.balance("p1").String())
	reversed := f.hooks.returned[0].Points

	voided, err := f.svc.Void(ctx, "manager-1", sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, voided.Status)
	assert.Equal(t, StatusVoid, f.repo.st.sales[sale.ID].Status)
	assert.Equal(t, "5", f.repo.balance("p1").String())
	assert.Equal(t, "2", f.repo.balance("p2").String())

	require.Len(t, f.hooks.voided, 1)
	assert.Equal(t, "c1", f.hooks.voided[0].CustomerID)
	assert.Equal(t, 60-reversed, f.hooks.voided[0].Points)

	last := f.repo.st.activity[len(f.repo.st.activity)-1]
	assert.Equal(t, "sale.voided", last.Action)
	assert.Equal(t, "manager-1", last.ActorID)

	_, err = f.svc.Void(ctx, "manager-1", sale.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, "5", f.repo.balance("p1").String())

	_, err = f.svc.Return(ctx, "cashier-1", sale.ID, ReturnRequest{
		Reason: "after void",
		Lines:  []ReturnLine{{SaleItemID: sale.Items[1].ID, Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.Void(ctx, "manager-1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVoidWalkInSaleSkipsLoyalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		PaymentMethod: PaymentCard,
		Lines:         []LineRequest{{ProductID: "p2", Quantity: d("1")}},
	})
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, "manager-1", sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", f.repo.balance("p2").String())
	assert.Empty(t, f.hooks.voided)
}

func TestUpdatePatchesNotesAndCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, "cashier-1", "", CreateSaleRequest{
		ShiftID:       f.shiftID,
		PaymentMethod: PaymentCash,
		Lines:         []LineRequest{{ProductID: "p1", Quantity: d("1")}},
		Notes:         "gift wrap",
	})
	require.NoError(t, err)

	notes, customer := "  engraving pending ", "c1"
	updated, err := f.svc.Update(ctx, "cashier-2", sale.ID, UpdateSaleRequest{Notes: &notes, CustomerID: &customer})
	require.NoError(t, err)
	assert.Equal(t, "engraving pending", updated.Notes)
	assert.Equal(t, "c1", updated.CustomerID)
	stored := f.repo.st.sales[sale.ID]
	assert.Equal(t, "engraving pending", stored.Notes)
	assert.Equal(t, "c1", stored.CustomerID)
	last := f.repo.st.activity[len(f.repo.st.activity)-1]
	assert.Equal(t, "sale.updated", last.Action)
	assert.Equal(t, "c1", last.Meta["customer_to"])

	before := len(f.repo.st.activity)
	_, err = f.svc.Update(ctx, "cashier-2", sale.ID, UpdateSaleRequest{})
	require.NoError(t, err)
	assert.Len(t, f.repo.st.activity, before)

	require.NoError(t, f.repo.SetPointsEarned(ctx, sale.ID, 10))
	other := "c2"
	_, err = f.svc.Update(ctx, "cashier-2", sale.ID, UpdateSaleRequest{CustomerID: &other})
	require.ErrorIs(t, err, ErrCustomerLocked)
	assert.Equal(t, "c1", f.repo.st.sales[sale.ID].CustomerID)

	long := string(make([]byte, 1001))
	_, err = f.svc.Update(ctx, "cashier-2", sale.ID, UpdateSaleRequest{Notes: &long})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Void(ctx, "manager-1", sale.ID)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "cashier-2", sale.ID, UpdateSaleRequest{Notes: &notes})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpsertExternalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := ExternalOrder{
		ExternalOrderID: "SHOP-1001",
		Status:          "paid",
		Lines:           []ExternalOrderLine{{SKU: "RING-18K", Quantity: d("1"), UnitPrice: d("5000")}},
	}

	sale, created, err := f.svc.UpsertExternalOrder(ctx, "", order)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, SourceWebhook, sale.Source)
	assert.Equal(t, PaymentOnline, sale.PaymentMethod)
	assert.Equal(t, "5150.00", sale.Total.StringFixed(2))
	assert.Equal(t, "1", f.repo.balance("p2").String())
	assert.Empty(t, f.repo.st.ops)

	order.Status = "cancelled"
	again, created, err := f.svc.UpsertExternalOrder(ctx, "", order)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sale.ID, again.ID)
	assert.Equal(t, StatusCancelled, again.Status)
	assert.Equal(t, "2", f.repo.balance("p2").String())

	_, _, err = f.svc.UpsertExternalOrder(ctx, "", order)
	require.NoError(t, err)
	assert.Equal(t, "2", f.repo.balance("p2").String())
	assert.Len(t, f.repo.st.sales, 1)

	_, _, err = f.svc.UpsertExternalOrder(ctx, "", ExternalOrder{ExternalOrderID: "SHOP-1002"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = f.svc.UpsertExternalOrder(ctx, "", ExternalOrder{ExternalOrderID: "SHOP-1003",
		Lines: []ExternalOrderLine{{SKU: "MISSING", Quantity: d("1"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, ErrProductUnavailable)
}

func TestReversedPoints(t *testing.T) {
	cases := []struct {
		earned        int64
		refund, total string
		want          int64
	}{
		{20, "1030", "2060", 10},
		{7, "100", "300", 2},
		{7, "300", "300", 7},
		{7, "400", "300", 7},
		{0, "100", "300", 0},
		{7, "0", "300", 0},
		{7, "10", "0", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReversedPoints(tc.earned, d(tc.refund), d(tc.total)), "%d %s/%s", tc.earned, tc.refund, tc.total)
	}
}
