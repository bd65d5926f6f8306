package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

type store struct {
	challans map[string]Challan
	orders   map[string]sales.Order
	balances map[string]inventory.Balance
	seq      map[string]int64
	activity []shared.ActivityEntry
	nextID   int
}

func newStore() *store {
	return &store{
		challans: map[string]Challan{},
		orders:   map[string]sales.Order{},
		balances: map[string]inventory.Balance{},
		seq:      map[string]int64{},
	}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.challans {
		v.Items = append([]Item(nil), v.Items...)
		c.challans[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]sales.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
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
		Challans:  memChallans{m},
		Orders:    memOrders{m},
		Inventory: memStock{m},
		Numbers:   memNumbers{m},
		Activity:  memActivity{m},
	}
	if err := fn(ctx, scope); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) GetChallan(_ context.Context, id string) (Challan, error) {
	ch, ok := m.st.challans[id]
	if !ok {
		return Challan{}, ErrNotFound
	}
	ch.Items = append([]Item(nil), ch.Items...)
	return ch, nil
}

func (m *memRepo) ListChallans(_ context.Context, f ListFilters) ([]Challan, int, error) {
	var out []Challan
	for _, ch := range m.st.challans {
		if f.OrderID != "" && ch.OrderID != f.OrderID {
			continue
		}
		if f.Status != "" && ch.Status != f.Status {
			continue
		}
		out = append(out, ch)
	}
	return out, len(out), nil
}

func (m *memRepo) balance(product string) decimal.Decimal {
	return m.st.balances[inventory.DefaultLocation+"|"+product].Qty
}

type memChallans struct{ m *memRepo }

func (t memChallans) InsertChallan(_ context.Context, ch Challan) (Challan, error) {
	ch.ID = t.m.st.id("dc")
	ch.CreatedAt = time.Now()
	ch.UpdatedAt = ch.CreatedAt
	t.m.st.challans[ch.ID] = ch
	return ch, nil
}

func (t memChallans) InsertItem(_ context.Context, it Item) (Item, error) {
	ch, ok := t.m.st.challans[it.ChallanID]
	if !ok {
		return Item{}, ErrNotFound
	}
	it.ID = t.m.st.id("dci")
	ch.Items = append(ch.Items, it)
	t.m.st.challans[ch.ID] = ch
	return it, nil
}

func (t memChallans) LockChallan(ctx context.Context, id string) (Challan, error) {
	return t.m.GetChallan(ctx, id)
}

func (t memChallans) UpdateStatus(_ context.Context, ch Challan) error {
	cur, ok := t.m.st.challans[ch.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status, cur.Carrier, cur.TrackingNumber = ch.Status, ch.Carrier, ch.TrackingNumber
	cur.DispatchedAt, cur.DeliveredAt = ch.DispatchedAt, ch.DeliveredAt
	t.m.st.challans[ch.ID] = cur
	return nil
}

func (t memChallans) SetItemCost(_ context.Context, itemID string, cost decimal.Decimal) error {
	for id, ch := range t.m.st.challans {
		for i := range ch.Items {
			if ch.Items[i].ID == itemID {
				ch.Items[i].UnitCost = cost
				t.m.st.challans[id] = ch
				return nil
			}
		}
	}
	return ErrNotFound
}

type memOrders struct{ m *memRepo }

func (t memOrders) InsertOrder(context.Context, sales.Order) (sales.Order, error) {
	return sales.Order{}, fmt.Errorf("not used")
}

func (t memOrders) UpdateOrderDraft(context.Context, sales.Order) error { return fmt.Errorf("not used") }

func (t memOrders) DeleteOrderItems(context.Context, string) error { return fmt.Errorf("not used") }

func (t memOrders) InsertOrderItem(context.Context, sales.OrderItem) (sales.OrderItem, error) {
	return sales.OrderItem{}, fmt.Errorf("not used")
}

func (t memOrders) LockOrder(_ context.Context, id string) (sales.Order, error) {
	o, ok := t.m.st.orders[id]
	if !ok {
		return sales.Order{}, sales.ErrOrderNotFound
	}
	o.Items = append([]sales.OrderItem(nil), o.Items...)
	return o, nil
}

func (t memOrders) SetOrderStatus(_ context.Context, id string, status sales.OrderStatus) error {
	o := t.m.st.orders[id]
	o.Status = status
	t.m.st.orders[id] = o
	return nil
}

func (t memOrders) AddDelivered(_ context.Context, itemID string, qty decimal.Decimal) error {
	for id, o := range t.m.st.orders {
		for i := range o.Items {
			if o.Items[i].ID != itemID {
				continue
			}
			next := o.Items[i].DeliveredQty.Add(qty)
			if next.IsNegative() || next.GreaterThan(o.Items[i].Quantity) {
				return sales.ErrOverDelivery
			}
			o.Items[i].DeliveredQty = next
			t.m.st.orders[id] = o
			return nil
		}
	}
	return sales.ErrOverDelivery
}

func (t memOrders) Product(context.Context, string) (sales.ProductRef, error) {
	return sales.ProductRef{}, fmt.Errorf("not used")
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

func (t memStock) InsertMovement(context.Context, inventory.Movement) (string, error) {
	return t.m.st.id("mov"), nil
}

func (t memStock) InsertCardEntry(context.Context, inventory.StockCardEntry, string, string, string) error {
	return nil
}

func (t memStock) ProductIDBySKU(context.Context, string) (string, error) {
	return "", inventory.ErrBalanceNotFound
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
