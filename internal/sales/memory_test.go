package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/register"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

type store struct {
	sales    map[string]Sale
	returns  map[string]Return
	orders   map[string]Order
	products map[string]ProductRef
	balances map[string]inventory.Balance
	shifts   map[string]register.Shift
	ops      []register.Operation
	seq      map[string]int64
	activity []shared.ActivityEntry
	nextID   int
}

func newStore() *store {
	return &store{
		sales:    map[string]Sale{},
		returns:  map[string]Return{},
		orders:   map[string]Order{},
		products: map[string]ProductRef{},
		balances: map[string]inventory.Balance{},
		shifts:   map[string]register.Shift{},
		seq:      map[string]int64{},
	}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.sales {
		v.Items = append([]Item(nil), v.Items...)
		c.sales[k] = v
	}
	for k, v := range s.returns {
		v.Items = append([]ReturnItem(nil), v.Items...)
		c.returns[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.shifts {
		c.shifts[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.ops = append(c.ops, s.ops...)
	c.activity = append(c.activity, s.activity...)
	c.nextID = s.nextID
	return c
}

func (s *store) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// memRepo is an in-memory RepositoryPort whose WithTx restores the previous
// state when fn fails.
type memRepo struct {
	st *store
}

func newMemRepo() *memRepo { return &memRepo{st: newStore()} }

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	snapshot := m.st.clone()
	scope := TxScope{
		Sales:     memSales{m},
		Inventory: memStock{m},
		Register:  memDrawer{m},
		Numbers:   memNumbers{m},
		Activity:  memActivity{m},
	}
	if err := fn(ctx, scope); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) GetSale(_ context.Context, id string) (Sale, error) {
	s, ok := m.st.sales[id]
	if !ok {
		return Sale{}, ErrNotFound
	}
	s.Items = append([]Item(nil), s.Items...)
	return s, nil
}

func (m *memRepo) ListSales(_ context.Context, f ListFilters) ([]Sale, int, error) {
	var out []Sale
	for _, s := range m.st.sales {
		if f.CustomerID != "" && s.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memRepo) SetPointsEarned(_ context.Context, id string, points int64) error {
	s, ok := m.st.sales[id]
	if !ok {
		return ErrNotFound
	}
	s.PointsEarned = points
	m.st.sales[id] = s
	return nil
}

func (m *memRepo) GetReturn(_ context.Context, id string) (Return, error) {
	r, ok := m.st.returns[id]
	if !ok {
		return Return{}, ErrReturnNotFound
	}
	return r, nil
}

func (m *memRepo) ListReturns(_ context.Context, saleID string) ([]Return, error) {
	var out []Return
	for _, r := range m.st.returns {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) balance(product string) decimal.Decimal {
	return m.st.balances[inventory.DefaultLocation+"|"+product].Qty
}

type memSales struct{ m *memRepo }

func (t memSales) InsertSale(_ context.Context, s Sale) (Sale, error) {
	st := t.m.st
	if s.ExternalOrderID != "" {
		for _, existing := range st.sales {
			if existing.ExternalOrderID == s.ExternalOrderID {
				return Sale{}, ErrDuplicateOrder
			}
		}
	}
	s.ID = st.id("sale")
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	st.sales[s.ID] = s
	return s, nil
}

func (t memSales) InsertItem(_ context.Context, it Item) (Item, error) {
	st := t.m.st
	s, ok := st.sales[it.SaleID]
	if !ok {
		return Item{}, ErrNotFound
	}
	it.ID = st.id("item")
	s.Items = append(s.Items, it)
	st.sales[s.ID] = s
	return it, nil
}

func (t memSales) LockSale(ctx context.Context, id string) (Sale, error) {
	return t.m.GetSale(ctx, id)
}

func (t memSales) LockByExternalID(ctx context.Context, externalID string) (Sale, error) {
	for id, s := range t.m.st.sales {
		if s.ExternalOrderID == externalID {
			return t.m.GetSale(ctx, id)
		}
	}
	return Sale{}, ErrNotFound
}

func (t memSales) UpdateStatus(_ context.Context, id string, status Status, externalStatus string) error {
	s, ok := t.m.st.sales[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	if externalStatus != "" {
		s.ExternalStatus = externalStatus
	}
	t.m.st.sales[id] = s
	return nil
}

func (t memSales) UpdateDetails(_ context.Context, id, notes, customerID string) error {
	s, ok := t.m.st.sales[id]
	if !ok {
		return ErrNotFound
	}
	s.Notes, s.CustomerID = notes, customerID
	t.m.st.sales[id] = s
	return nil
}

func (t memSales) PointsReversed(_ context.Context, saleID string) (int64, error) {
	var total int64
	for _, r := range t.m.st.returns {
		if r.SaleID == saleID {
			total += r.Points
		}
	}
	return total, nil
}

func (t memSales) AddReturned(_ context.Context, itemID string, qty decimal.Decimal) error {
	for id, s := range t.m.st.sales {
		for i, it := range s.Items {
			if it.ID != itemID {
				continue
			}
			next := it.ReturnedQty.Add(qty)
			if next.GreaterThan(it.Quantity) {
				return ErrReturnExceedsSold
			}
			s.Items[i].ReturnedQty = next
			t.m.st.sales[id] = s
			return nil
		}
	}
	return ErrReturnExceedsSold
}

func (t memSales) AddRefunded(_ context.Context, id string, amount decimal.Decimal) error {
	s, ok := t.m.st.sales[id]
	if !ok {
		return ErrNotFound
	}
	next := s.RefundedTotal.Add(amount)
	if next.GreaterThan(s.Total) {
		return ErrReturnExceedsSold
	}
	s.RefundedTotal = next
	t.m.st.sales[id] = s
	return nil
}

func (t memSales) InsertReturn(_ context.Context, r Return) (Return, error) {
	r.ID = t.m.st.id("ret")
	r.CreatedAt = time.Now()
	t.m.st.returns[r.ID] = r
	return r, nil
}

func (t memSales) InsertReturnItem(_ context.Context, it ReturnItem) (ReturnItem, error) {
	r := t.m.st.returns[it.ReturnID]
	it.ID = t.m.st.id("reti")
	r.Items = append(r.Items, it)
	t.m.st.returns[it.ReturnID] = r
	return it, nil
}

func (t memSales) Product(_ context.Context, id string) (ProductRef, error) {
	p, ok := t.m.st.products[id]
	if !ok {
		return ProductRef{}, ErrProductUnavailable
	}
	return p, nil
}

func (t memSales) ProductBySKU(_ context.Context, sku string) (ProductRef, error) {
	for _, p := range t.m.st.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return ProductRef{}, ErrProductUnavailable
}

type memStock struct{ m *memRepo }

func (t memStock) GetBalanceForUpdate(_ context.Context, locationID, productID string) (inventory.Balance, error) {
	b, ok := t.m.st.balances[locationID+"|"+productID]
	if !ok {
		return inventory.Balance{}, inventory.ErrBalanceNotFound
	}
	return b, nil
}

func (t memStock) ApplyDelta(_ context.Context, locationID, productID string, delta, avgCost decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	key := locationID + "|" + productID
	b := t.m.st.balances[key]
	next := b.Qty.Add(delta)
	if !allowNegative && next.IsNegative() {
		return decimal.Zero, inventory.ErrNegativeStock
	}
	b.LocationID, b.ProductID, b.Qty, b.AvgCost = locationID, productID, next, avgCost
	t.m.st.balances[key] = b
	return next, nil
}

func (t memStock) InsertMovement(_ context.Context, _ inventory.Movement) (string, error) {
	return t.m.st.id("mov"), nil
}

func (t memStock) InsertCardEntry(context.Context, inventory.StockCardEntry, string, string, string) error {
	return nil
}

func (t memStock) ProductIDBySKU(ctx context.Context, sku string) (string, error) {
	p, err := memSales(t).ProductBySKU(ctx, sku)
	return p.ID, err
}

type memDrawer struct{ m *memRepo }

func (t memDrawer) InsertShift(_ context.Context, s register.Shift) (register.Shift, error) {
	s.ID = t.m.st.id("shift")
	s.Status = register.ShiftOpen
	s.ExpectedCash = s.OpeningFloat
	t.m.st.shifts[s.ID] = s
	return s, nil
}

func (t memDrawer) LockOpenShift(_ context.Context, id string) (register.Shift, error) {
	s, ok := t.m.st.shifts[id]
	if !ok || s.Status != register.ShiftOpen {
		return register.Shift{}, register.ErrShiftClosed
	}
	return s, nil
}

func (t memDrawer) AddExpected(_ context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	s := t.m.st.shifts[id]
	next := s.ExpectedCash.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, register.ErrInsufficientCash
	}
	s.ExpectedCash = next
	t.m.st.shifts[id] = s
	return next, nil
}

func (t memDrawer) InsertOperation(_ context.Context, op register.Operation) (register.Operation, error) {
	op.ID = t.m.st.id("op")
	t.m.st.ops = append(t.m.st.ops, op)
	return op, nil
}

func (t memDrawer) CloseShift(_ context.Context, s register.Shift) error {
	s.Status = register.ShiftClosed
	t.m.st.shifts[s.ID] = s
	return nil
}

type memNumbers struct{ m *memRepo }

func (t memNumbers) Next(_ context.Context, name string) (string, error) {
	t.m.st.seq[name]++
	return settings.Sequence{Prefix: settings.DefaultPrefixes[name], Padding: 6}.Format(t.m.st.seq[name]), nil
}

type memActivity struct{ m *memRepo }

func (t memActivity) Record(_ context.Context, e shared.ActivityEntry) error {
	t.m.st.activity = append(t.m.st.activity, e)
	return nil
}

func (m *memRepo) WithOrderTx(ctx context.Context, fn func(context.Context, OrderTxScope) error) error {
	snapshot := m.st.clone()
	if err := fn(ctx, OrderTxScope{Orders: memOrders{m}, Numbers: memNumbers{m}, Activity: memActivity{m}}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) GetOrder(_ context.Context, id string) (Order, error) {
	o, ok := m.st.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o.Items = append([]OrderItem(nil), o.Items...)
	return o, nil
}

func (m *memRepo) ListOrders(_ context.Context, f OrderFilters) ([]Order, int, error) {
	var out []Order
	for _, o := range m.st.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

type memOrders struct{ m *memRepo }

func (t memOrders) InsertOrder(_ context.Context, o Order) (Order, error) {
	o.ID = t.m.st.id("so")
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.m.st.orders[o.ID] = o
	return o, nil
}

func (t memOrders) UpdateOrderDraft(_ context.Context, o Order) error {
	cur, ok := t.m.st.orders[o.ID]
	if !ok || cur.Status != OrderDraft {
		return ErrOrderNotEditable
	}
	o.Items = cur.Items
	t.m.st.orders[o.ID] = o
	return nil
}

func (t memOrders) DeleteOrderItems(_ context.Context, orderID string) error {
	o := t.m.st.orders[orderID]
	o.Items = nil
	t.m.st.orders[orderID] = o
	return nil
}

func (t memOrders) InsertOrderItem(_ context.Context, it OrderItem) (OrderItem, error) {
	o, ok := t.m.st.orders[it.OrderID]
	if !ok {
		return OrderItem{}, ErrOrderNotFound
	}
	it.ID = t.m.st.id("soi")
	o.Items = append(o.Items, it)
	t.m.st.orders[o.ID] = o
	return it, nil
}

func (t memOrders) LockOrder(ctx context.Context, id string) (Order, error) {
	return t.m.GetOrder(ctx, id)
}

func (t memOrders) SetOrderStatus(_ context.Context, id string, status OrderStatus) error {
	o, ok := t.m.st.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	t.m.st.orders[id] = o
	return nil
}

func (t memOrders) AddDelivered(_ context.Context, itemID string, qty decimal.Decimal) error {
	for id, o := range t.m.st.orders {
		for i, it := range o.Items {
			if it.ID != itemID {
				continue
			}
			next := it.DeliveredQty.Add(qty)
			if next.IsNegative() || next.GreaterThan(it.Quantity) {
				return ErrOverDelivery
			}
			o.Items[i].DeliveredQty = next
			t.m.st.orders[id] = o
			return nil
		}
	}
	return ErrOverDelivery
}

func (t memOrders) Product(ctx context.Context, id string) (ProductRef, error) {
	return memSales(t).Product(ctx, id)
}
