package delivery

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/sales"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	repo.st.balances[inventory.DefaultLocation+"|p1"] = inventory.Balance{LocationID: inventory.DefaultLocation, ProductID: "p1", Qty: d("5"), AvgCost: d("800")}
	repo.st.balances[inventory.DefaultLocation+"|p2"] = inventory.Balance{LocationID: inventory.DefaultLocation, ProductID: "p2", Qty: d("1"), AvgCost: d("4000")}
	repo.st.orders["so-1"] = sales.Order{
		ID: "so-1", Number: "SO-000001", CustomerID: "c1", Status: sales.OrderConfirmed,
		Items: []sales.OrderItem{
			{ID: "soi-1", OrderID: "so-1", ProductID: "p1", SKU: "BANGLE-22K", Quantity: d("3")},
			{ID: "soi-2", OrderID: "so-1", ProductID: "p2", SKU: "RING-18K", Quantity: d("1")},
		},
	}
	repo.st.orders["so-draft"] = sales.Order{ID: "so-draft", Number: "SO-000002", CustomerID: "c1", Status: sales.OrderDraft,
		Items: []sales.OrderItem{{ID: "soi-3", OrderID: "so-draft", ProductID: "p1", Quantity: d("1")}}}
	svc := NewService(repo, inventory.NewService(nil, nil, nil, inventory.ServiceConfig{}, nil, nil), nil)
	return svc, repo
}

func TestChallanDispatchIssuesStockAndDeliversOrder(t *testing.T) {
	svc, repo := newFixture(t)
	ctx := context.Background()

	ch, err := svc.Create(ctx, "clerk-1", CreateRequest{
		OrderID: "so-1",
		Lines:   []LineRequest{{OrderItemID: "soi-1", Quantity: d("2")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "DC-000001", ch.Number)
	assert.Equal(t, StatusDraft, ch.Status)
	assert.Equal(t, "c1", ch.CustomerID)
	assert.Equal(t, "5", repo.balance("p1").String(), "a draft challan moves nothing")

	dispatched, err := svc.Dispatch(ctx, "clerk-1", ch.ID, DispatchRequest{Carrier: "BlueDart", TrackingNumber: "BD123"})
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, dispatched.Status)
	assert.False(t, dispatched.DispatchedAt.IsZero())
	assert.Equal(t, "3", repo.balance("p1").String())
	assert.Equal(t, "800", repo.st.challans[ch.ID].Items[0].UnitCost.String())
	assert.Equal(t, "BD123", repo.st.challans[ch.ID].TrackingNumber)
	assert.Equal(t, "2", repo.st.orders["so-1"].Items[0].DeliveredQty.String())
	assert.Equal(t, sales.OrderPartiallyDelivered, repo.st.orders["so-1"].Status)

	_, err = svc.Dispatch(ctx, "clerk-1", ch.ID, DispatchRequest{})
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, "3", repo.balance("p1").String())

	rest, err := svc.Create(ctx, "clerk-1", CreateRequest{
		OrderID: "so-1",
		Lines:   []LineRequest{{OrderItemID: "soi-1", Quantity: d("1")}, {OrderItemID: "soi-2", Quantity: d("1")}},
	})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "clerk-1", rest.ID, DispatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, sales.OrderDelivered, repo.st.orders["so-1"].Status)
	assert.Equal(t, "2", repo.balance("p1").String())
	assert.Equal(t, "0", repo.balance("p2").String())

	delivered, err := svc.MarkDelivered(ctx, "clerk-1", ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, delivered.Status)
	_, err = svc.Cancel(ctx, "clerk-1", ch.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	var actions []string
	for _, e := range repo.st.activity {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		"delivery_challan.created", "delivery_challan.dispatched",
		"delivery_challan.created", "delivery_challan.dispatched",
		"delivery_challan.delivered",
	}, actions)
}

func TestChallanCreateGuardsOrder(t *testing.T) {
	svc, repo := newFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-draft", Lines: []LineRequest{{OrderItemID: "soi-3", Quantity: d("1")}}})
	require.ErrorIs(t, err, sales.ErrOrderNotDeliverable)

	_, err = svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-1", Quantity: d("4")}}})
	require.ErrorIs(t, err, sales.ErrOverDelivery)

	_, err = svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{
		{OrderItemID: "soi-1", Quantity: d("2")}, {OrderItemID: "soi-1", Quantity: d("2")},
	}})
	require.ErrorIs(t, err, sales.ErrOverDelivery)

	_, err = svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-9", Quantity: d("1")}}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-1", Quantity: d("0")}}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "missing", Lines: []LineRequest{{OrderItemID: "soi-1", Quantity: d("1")}}})
	require.ErrorIs(t, err, sales.ErrOrderNotFound)

	assert.Empty(t, repo.st.challans)
	assert.Empty(t, repo.st.seq)
}

func TestChallanDispatchIsAllOrNothing(t *testing.T) {
	svc, repo := newFixture(t)
	ctx := context.Background()
	repo.st.orders["so-1"] = func(o sales.Order) sales.Order {
		o.Items[1].Quantity = d("2")
		return o
	}(repo.st.orders["so-1"])

	ch, err := svc.Create(ctx, "clerk-1", CreateRequest{
		OrderID: "so-1",
		Lines:   []LineRequest{{OrderItemID: "soi-1", Quantity: d("1")}, {OrderItemID: "soi-2", Quantity: d("2")}},
	})
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, "clerk-1", ch.ID, DispatchRequest{})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	assert.Equal(t, "5", repo.balance("p1").String())
	assert.Equal(t, "1", repo.balance("p2").String())
	assert.True(t, repo.st.orders["so-1"].Items[0].DeliveredQty.IsZero())
	assert.Equal(t, sales.OrderConfirmed, repo.st.orders["so-1"].Status)
	assert.Equal(t, StatusDraft, repo.st.challans[ch.ID].Status)
}

func TestCancelDispatchedChallanRestocks(t *testing.T) {
	svc, repo := newFixture(t)
	ctx := context.Background()

	ch, err := svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-1", Quantity: d("3")}}})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, "clerk-1", ch.ID, DispatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, "2", repo.balance("p1").String())

	cancelled, err := svc.Cancel(ctx, "manager-1", ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "5", repo.balance("p1").String())
	assert.Equal(t, "800", repo.st.balances[inventory.DefaultLocation+"|p1"].AvgCost.String())
	assert.True(t, repo.st.orders["so-1"].Items[0].DeliveredQty.IsZero())
	assert.Equal(t, sales.OrderConfirmed, repo.st.orders["so-1"].Status)

	draft, err := svc.Create(ctx, "clerk-1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-2", Quantity: d("1")}}})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "manager-1", draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", repo.balance("p2").String())

	_, err = svc.Cancel(ctx, "manager-1", draft.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.MarkDelivered(ctx, "manager-1", draft.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	list, total, err := svc.List(ctx, ListFilters{OrderID: "so-1", Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)
}
