package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

type store struct {
	vendors  map[string]Vendor
	links    map[string]VendorProduct
	pos      map[string]PurchaseOrder
	grns     map[string]GoodsReceipt
	balances map[string]inventory.Balance
	seq      map[string]int64
	activity []shared.ActivityEntry
	nextID   int
}

func newStore() *store {
	return &store{
		vendors:  map[string]Vendor{},
		links:    map[string]VendorProduct{},
		pos:      map[string]PurchaseOrder{},
		grns:     map[string]GoodsReceipt{},
		balances: map[string]inventory.Balance{},
		seq:      map[string]int64{},
	}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.pos {
		v.Items = append([]POItem(nil), v.Items...)
		c.pos[k] = v
	}
	for k, v := range s.grns {
		v.Items = append([]GRNItem(nil), v.Items...)
		c.grns[k] = v
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

type memRepo struct {
	st *store
}

func newMemRepo() *memRepo { return &memRepo{st: newStore()} }

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	snapshot := m.st.clone()
	scope := TxScope{Orders: memOrders{m}, Inventory: memStock{m}, Numbers: memNumbers{m}, Activity: memActivity{m}}
	if err := fn(ctx, scope); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) ListVendors(_ context.Context, f VendorFilters) ([]Vendor, int, error) {
	var out []Vendor
	for _, v := range m.st.vendors {
		if f.Active != nil && v.IsActive != *f.Active {
			continue
		}
		out = append(out, v)
	}
	return out, len(out), nil
}

func (m *memRepo) GetVendor(_ context.Context, id string) (Vendor, error) {
	v, ok := m.st.vendors[id]
	if !ok {
		return Vendor{}, ErrVendorNotFound
	}
	return v, nil
}

func (m *memRepo) CreateVendor(_ context.Context, v Vendor) (Vendor, error) {
	for _, existing := range m.st.vendors {
		if existing.Code == v.Code {
			return Vendor{}, ErrDuplicateVendor
		}
	}
	v.ID = m.st.id("vendor")
	v.IsActive = true
	m.st.vendors[v.ID] = v
	return v, nil
}

func (m *memRepo) UpdateVendor(_ context.Context, id string, p VendorPatch) (Vendor, error) {
	v, ok := m.st.vendors[id]
	if !ok {
		return Vendor{}, ErrVendorNotFound
	}
	if p.Name != nil {
		v.Name = *p.Name
	}
	if p.Phone != nil {
		v.Phone = *p.Phone
	}
	if p.PaymentTerms != nil {
		v.PaymentTerms = *p.PaymentTerms
	}
	if p.IsActive != nil {
		v.IsActive = *p.IsActive
	}
	m.st.vendors[id] = v
	return v, nil
}

func (m *memRepo) ListVendorProducts(_ context.Context, vendorID string) ([]VendorProduct, error) {
	var out []VendorProduct
	for _, vp := range m.st.links {
		if vp.VendorID == vendorID {
			out = append(out, vp)
		}
	}
	return out, nil
}

func (m *memRepo) UpsertVendorProduct(_ context.Context, vp VendorProduct) (VendorProduct, error) {
	key := vp.VendorID + "|" + vp.ProductID
	if existing, ok := m.st.links[key]; ok {
		vp.ID = existing.ID
	} else {
		vp.ID = m.st.id("vp")
	}
	m.st.links[key] = vp
	return vp, nil
}

func (m *memRepo) DeleteVendorProduct(_ context.Context, vendorID, productID string) error {
	key := vendorID + "|" + productID
	if _, ok := m.st.links[key]; !ok {
		return ErrNotFound
	}
	delete(m.st.links, key)
	return nil
}

func (m *memRepo) GetPO(_ context.Context, id string) (PurchaseOrder, error) {
	po, ok := m.st.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	po.Items = append([]POItem(nil), po.Items...)
	return po, nil
}

func (m *memRepo) ListPOs(_ context.Context, f POFilters) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range m.st.pos {
		if f.Status != "" && po.Status != f.Status {
			continue
		}
		out = append(out, po)
	}
	return out, len(out), nil
}

func (m *memRepo) GetGRN(_ context.Context, id string) (GoodsReceipt, error) {
	g, ok := m.st.grns[id]
	if !ok {
		return GoodsReceipt{}, ErrGRNNotFound
	}
	g.Items = append([]GRNItem(nil), g.Items...)
	return g, nil
}

func (m *memRepo) ListGRNs(_ context.Context, poID string) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, g := range m.st.grns {
		if g.POID == poID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memRepo) balance(product string) decimal.Decimal {
	return m.st.balances[inventory.DefaultLocation+"|"+product].Qty
}

type memOrders struct{ m *memRepo }

func (t memOrders) VendorActive(_ context.Context, vendorID string) (bool, error) {
	v, ok := t.m.st.vendors[vendorID]
	if !ok {
		return false, ErrVendorNotFound
	}
	return v.IsActive, nil
}

func (t memOrders) InsertPO(_ context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	po.ID = t.m.st.id("po")
	po.CreatedAt = time.Now()
	t.m.st.pos[po.ID] = po
	return po, nil
}

func (t memOrders) UpdatePODraft(_ context.Context, po PurchaseOrder) error {
	cur, ok := t.m.st.pos[po.ID]
	if !ok || cur.Status != POStatusDraft {
		return ErrInvalidState
	}
	po.Items = cur.Items
	t.m.st.pos[po.ID] = po
	return nil
}

func (t memOrders) DeletePOItems(_ context.Context, poID string) error {
	po := t.m.st.pos[poID]
	po.Items = nil
	t.m.st.pos[poID] = po
	return nil
}

func (t memOrders) InsertPOItem(_ context.Context, it POItem) (POItem, error) {
	po, ok := t.m.st.pos[it.POID]
	if !ok {
		return POItem{}, ErrPONotFound
	}
	it.ID = t.m.st.id("poi")
	po.Items = append(po.Items, it)
	t.m.st.pos[po.ID] = po
	return it, nil
}

func (t memOrders) LockPO(ctx context.Context, id string) (PurchaseOrder, error) {
	return t.m.GetPO(ctx, id)
}

func (t memOrders) SetPOStatus(_ context.Context, id string, status POStatus) error {
	po, ok := t.m.st.pos[id]
	if !ok {
		return ErrPONotFound
	}
	po.Status = status
	t.m.st.pos[id] = po
	return nil
}

func (t memOrders) SetPOApproval(_ context.Context, id, approvedBy string, approvedAt time.Time) error {
	po := t.m.st.pos[id]
	po.ApprovedBy = approvedBy
	po.ApprovedAt = &approvedAt
	t.m.st.pos[id] = po
	return nil
}

func (t memOrders) DeletePODraft(_ context.Context, id string) error {
	po, ok := t.m.st.pos[id]
	if !ok || po.Status != POStatusDraft {
		return ErrInvalidState
	}
	delete(t.m.st.pos, id)
	return nil
}

func (t memOrders) AddReceived(_ context.Context, poItemID string, qty decimal.Decimal) error {
	for id, po := range t.m.st.pos {
		for i, it := range po.Items {
			if it.ID != poItemID {
				continue
			}
			next := it.ReceivedQty.Add(qty)
			if next.GreaterThan(it.Quantity) {
				return ErrOverReceipt
			}
			po.Items[i].ReceivedQty = next
			t.m.st.pos[id] = po
			return nil
		}
	}
	return ErrOverReceipt
}

func (t memOrders) InsertGRN(_ context.Context, g GoodsReceipt) (GoodsReceipt, error) {
	g.ID = t.m.st.id("grn")
	g.CreatedAt = time.Now()
	t.m.st.grns[g.ID] = g
	return g, nil
}

func (t memOrders) InsertGRNItem(_ context.Context, it GRNItem) (GRNItem, error) {
	g := t.m.st.grns[it.GRNID]
	it.ID = t.m.st.id("grni")
	g.Items = append(g.Items, it)
	t.m.st.grns[g.ID] = g
	return it, nil
}

func (t memOrders) LockGRN(ctx context.Context, id string) (GoodsReceipt, error) {
	return t.m.GetGRN(ctx, id)
}

func (t memOrders) MarkGRNPosted(_ context.Context, id string, at time.Time) error {
	g, ok := t.m.st.grns[id]
	if !ok || g.Status != GRNStatusDraft {
		return ErrAlreadyPosted
	}
	g.Status = GRNStatusPosted
	g.PostedAt = &at
	t.m.st.grns[id] = g
	return nil
}

func (t memOrders) SetGRNStatus(_ context.Context, id string, status GRNStatus) error {
	g, ok := t.m.st.grns[id]
	if !ok {
		return ErrGRNNotFound
	}
	g.Status = status
	t.m.st.grns[id] = g
	return nil
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

func (t memStock) ProductIDBySKU(_ context.Context, sku string) (string, error) {
	return "", inventory.ErrBalanceNotFound
}

type memNumbers struct{ m *memRepo }

func (n memNumbers) Next(_ context.Context, name string) (string, error) {
	n.m.st.seq[name]++
	return settings.Sequence{Prefix: settings.DefaultPrefixes[name], Padding: 6}.Format(n.m.st.seq[name]), nil
}

type memActivity struct{ m *memRepo }

func (a memActivity) Record(_ context.Context, e shared.ActivityEntry) error {
	a.m.st.activity = append(a.m.st.activity, e)
	return nil
}
