package procurement

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

func claimed(total string) *sales.ClaimedTotals {
	v := d(total)
	return &sales.ClaimedTotals{GrandTotal: &v}
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	stock := inventory.NewService(nil, nil, nil, inventory.ServiceConfig{}, nil, nil)
	return NewService(repo, stock, nil, nil), repo
}

func approvedOrder(t *testing.T, svc *Service) (Vendor, PurchaseOrder) {
	t.Helper()
	ctx := context.Background()
	vendor, err := svc.CreateVendor(ctx, VendorRequest{Code: "gold-01", Name: "Sunrise Bullion", PaymentTerms: 30})
	require.NoError(t, err)
	po, err := svc.CreatePurchaseOrder(ctx, "buyer", PORequest{
		VendorID: vendor.ID,
		Lines: []POLineRequest{
			{ProductID: "ring", Quantity: d("10"), UnitCost: d("100"), TaxPercent: d("3")},
			{ProductID: "chain", Quantity: d("4"), UnitCost: d("250")},
		},
	})
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, "buyer", po.ID)
	require.NoError(t, err)
	po, err = svc.ApprovePurchaseOrder(ctx, "manager", po.ID)
	require.NoError(t, err)
	return vendor, po
}

func itemFor(po PurchaseOrder, productID string) POItem {
	for _, it := range po.Items {
		if it.ProductID == productID {
			return it
		}
	}
	return POItem{}
}

func TestVendorLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	vendor, err := svc.CreateVendor(ctx, VendorRequest{Code: " gold-01 ", Name: "Sunrise Bullion"})
	require.NoError(t, err)
	assert.Equal(t, "GOLD-01", vendor.Code)
	assert.True(t, vendor.IsActive)

	_, err = svc.CreateVendor(ctx, VendorRequest{Code: "GOLD-01", Name: "Copy"})
	require.ErrorIs(t, err, ErrDuplicateVendor)

	_, err = svc.CreateVendor(ctx, VendorRequest{Code: "X", Name: "Bad mail", Email: "nope"})
	require.ErrorIs(t, err, ErrValidation)

	link, err := svc.LinkProduct(ctx, vendor.ID, VendorProductRequest{ProductID: "ring", Cost: d("95")})
	require.NoError(t, err)
	again, err := svc.LinkProduct(ctx, vendor.ID, VendorProductRequest{ProductID: "ring", Cost: d("90")})
	require.NoError(t, err)
	assert.Equal(t, link.ID, again.ID)
	products, err := svc.VendorProducts(ctx, vendor.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, d("90").Equal(products[0].Cost))
	require.NoError(t, svc.UnlinkProduct(ctx, vendor.ID, "ring"))

	require.NoError(t, svc.DeactivateVendor(ctx, vendor.ID))
	_, err = svc.CreatePurchaseOrder(ctx, "buyer", PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("1"), UnitCost: d("100")}},
	})
	require.ErrorIs(t, err, ErrVendorInactive)
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	vendor, err := svc.CreateVendor(ctx, VendorRequest{Code: "V1", Name: "Vendor"})
	require.NoError(t, err)
	po, err := svc.CreatePurchaseOrder(ctx, "buyer", PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("10"), UnitCost: d("100"), TaxPercent: d("3")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PO-000001", po.Number)
	assert.Equal(t, POStatusDraft, po.Status)
	assert.True(t, d("1030").Equal(po.Total), po.Total.String())

	_, err = svc.ApprovePurchaseOrder(ctx, "manager", po.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	po, err = svc.UpdatePurchaseOrder(ctx, "buyer", po.ID, PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("5"), UnitCost: d("100")}},
	})
	require.NoError(t, err)
	assert.True(t, d("500").Equal(po.Total))
	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)

	_, err = svc.SubmitPurchaseOrder(ctx, "buyer", po.ID)
	require.NoError(t, err)
	_, err = svc.UpdatePurchaseOrder(ctx, "buyer", po.ID, PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("1"), UnitCost: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, svc.DeletePurchaseOrder(ctx, "buyer", po.ID), ErrInvalidState)

	approved, err := svc.ApprovePurchaseOrder(ctx, "manager", po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusApproved, approved.Status)
	assert.Equal(t, "manager", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	cancelled, err := svc.CancelPurchaseOrder(ctx, "manager", po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusCancelled, cancelled.Status)

	var actions []string
	for _, e := range repo.st.activity {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		"purchase_order.created", "purchase_order.updated", "purchase_order.submitted",
		"purchase_order.approved", "purchase_order.cancelled",
	}, actions)
}

func TestPurchaseOrderRejectsClaimedTotalsMismatch(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	vendor, err := svc.CreateVendor(ctx, VendorRequest{Code: "V1", Name: "Vendor"})
	require.NoError(t, err)

	_, err = svc.CreatePurchaseOrder(ctx, "buyer", PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("2"), UnitCost: d("100")}},
		Totals:   claimed("150"),
	})
	require.ErrorIs(t, err, sales.ErrTotalsMismatch)
	assert.Empty(t, repo.st.pos)
}

func TestGoodsReceiptPostsStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	_, po := approvedOrder(t, svc)
	ring := itemFor(po, "ring")
	chain := itemFor(po, "chain")

	grn, err := svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{
		Lines: []GRNLineRequest{{POItemID: ring.ID, Quantity: d("6")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "GRN-000001", grn.Number)
	assert.Equal(t, GRNStatusDraft, grn.Status)
	assert.Equal(t, inventory.DefaultLocation, grn.LocationID)
	assert.True(t, repo.balance("ring").IsZero(), "draft receipts do not move stock")

	posted, err := svc.PostGoodsReceipt(ctx, "clerk", grn.ID)
	require.NoError(t, err)
	assert.Equal(t, GRNStatusPosted, posted.Status)
	assert.True(t, d("6").Equal(repo.balance("ring")))

	current, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusPartiallyReceived, current.Status)
	assert.True(t, d("4").Equal(itemFor(current, "ring").Outstanding()))

	_, err = svc.PostGoodsReceipt(ctx, "clerk", grn.ID)
	require.ErrorIs(t, err, ErrAlreadyPosted)
	assert.True(t, d("6").Equal(repo.balance("ring")))

	_, err = svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{
		Lines: []GRNLineRequest{{POItemID: ring.ID, Quantity: d("5")}},
	})
	require.ErrorIs(t, err, ErrOverReceipt)

	cost := d("240")
	rest, err := svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{
		Lines: []GRNLineRequest{
			{POItemID: ring.ID, Quantity: d("4")},
			{POItemID: chain.ID, Quantity: d("4"), UnitCost: &cost},
		},
	})
	require.NoError(t, err)
	_, err = svc.PostGoodsReceipt(ctx, "clerk", rest.ID)
	require.NoError(t, err)

	assert.True(t, d("10").Equal(repo.balance("ring")))
	assert.True(t, d("4").Equal(repo.balance("chain")))
	current, err = svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusReceived, current.Status)

	_, err = svc.CancelPurchaseOrder(ctx, "manager", po.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	receipts, err := svc.GoodsReceipts(ctx, po.ID)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
}

func TestGoodsReceiptRollsBackOnOverReceipt(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	_, po := approvedOrder(t, svc)
	ring := itemFor(po, "ring")

	first, err := svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{Lines: []GRNLineRequest{{POItemID: ring.ID, Quantity: d("7")}}})
	require.NoError(t, err)
	second, err := svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{Lines: []GRNLineRequest{{POItemID: ring.ID, Quantity: d("7")}}})
	require.NoError(t, err)

	_, err = svc.PostGoodsReceipt(ctx, "clerk", first.ID)
	require.NoError(t, err)
	_, err = svc.PostGoodsReceipt(ctx, "clerk", second.ID)
	require.ErrorIs(t, err, ErrOverReceipt)

	assert.True(t, d("7").Equal(repo.balance("ring")))
	stored, err := svc.GetGoodsReceipt(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, GRNStatusDraft, stored.Status)

	require.NoError(t, svc.CancelGoodsReceipt(ctx, "clerk", second.ID))
	require.ErrorIs(t, svc.CancelGoodsReceipt(ctx, "clerk", second.ID), ErrInvalidState)
}

func TestGoodsReceiptRequiresApprovedOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor, err := svc.CreateVendor(ctx, VendorRequest{Code: "V1", Name: "Vendor"})
	require.NoError(t, err)
	po, err := svc.CreatePurchaseOrder(ctx, "buyer", PORequest{
		VendorID: vendor.ID,
		Lines:    []POLineRequest{{ProductID: "ring", Quantity: d("1"), UnitCost: d("100")}},
	})
	require.NoError(t, err)

	_, err = svc.CreateGoodsReceipt(ctx, "clerk", po.ID, GRNRequest{
		Lines: []GRNLineRequest{{POItemID: po.Items[0].ID, Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.CreateGoodsReceipt(ctx, "clerk", "missing", GRNRequest{
		Lines: []GRNLineRequest{{POItemID: "x", Quantity: d("1")}},
	})
	require.ErrorIs(t, err, ErrPONotFound)
}
