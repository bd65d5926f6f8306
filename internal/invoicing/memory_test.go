package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

type store struct {
	invoices map[string]Invoice
	payments []Payment
	notes    map[string]CreditNote
	seq      map[string]int64
	activity []shared.ActivityEntry
	nextID   int
}

func newStore() *store {
	return &store{invoices: map[string]Invoice{}, notes: map[string]CreditNote{}, seq: map[string]int64{}}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.invoices {
		v.Items = append([]Item(nil), v.Items...)
		c.invoices[k] = v
	}
	for k, v := range s.notes {
		v.Items = append([]CreditNoteItem(nil), v.Items...)
		c.notes[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.payments = append(c.payments, s.payments...)
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
	if err := fn(ctx, TxScope{Invoices: memTx{m}, Numbers: memNumbers{m}, Activity: memActivity{m}}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) GetInvoice(_ context.Context, id string) (Invoice, error) {
	inv, ok := m.st.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	inv.Items = append([]Item(nil), inv.Items...)
	return inv, nil
}

func (m *memRepo) ListInvoices(_ context.Context, f ListFilters) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.st.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (m *memRepo) ListPayments(_ context.Context, invoiceID string) ([]Payment, error) {
	var out []Payment
	for _, p := range m.st.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) ListCreditNotes(_ context.Context, invoiceID string) ([]CreditNote, error) {
	var out []CreditNote
	for _, cn := range m.st.notes {
		if cn.InvoiceID == invoiceID {
			out = append(out, cn)
		}
	}
	return out, nil
}

func (m *memRepo) GetCreditNote(_ context.Context, id string) (CreditNote, error) {
	cn, ok := m.st.notes[id]
	if !ok {
		return CreditNote{}, ErrCreditNoteNotFound
	}
	return cn, nil
}

type memTx struct{ m *memRepo }

func (t memTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = t.m.st.id("inv")
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	t.m.st.invoices[inv.ID] = inv
	return inv, nil
}

func (t memTx) UpdateDraft(_ context.Context, inv Invoice) error {
	cur, ok := t.m.st.invoices[inv.ID]
	if !ok || cur.Status != StatusDraft {
		return ErrNotDraft
	}
	inv.Items = cur.Items
	t.m.st.invoices[inv.ID] = inv
	return nil
}

func (t memTx) DeleteItems(_ context.Context, invoiceID string) error {
	inv := t.m.st.invoices[invoiceID]
	inv.Items = nil
	t.m.st.invoices[invoiceID] = inv
	return nil
}

func (t memTx) InsertItem(_ context.Context, it Item) (Item, error) {
	inv, ok := t.m.st.invoices[it.InvoiceID]
	if !ok {
		return Item{}, ErrNotFound
	}
	it.ID = t.m.st.id("item")
	inv.Items = append(inv.Items, it)
	t.m.st.invoices[inv.ID] = inv
	return it, nil
}

func (t memTx) LockInvoice(ctx context.Context, id string) (Invoice, error) {
	return t.m.GetInvoice(ctx, id)
}

func (t memTx) MarkIssued(_ context.Context, id string, at time.Time) error {
	inv, ok := t.m.st.invoices[id]
	if !ok || inv.Status != StatusDraft {
		return ErrNotDraft
	}
	inv.Status = StatusIssued
	inv.IssueDate = at
	t.m.st.invoices[id] = inv
	return nil
}

func (t memTx) SetStatus(_ context.Context, id string, status Status) error {
	inv, ok := t.m.st.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	t.m.st.invoices[id] = inv
	return nil
}

func (t memTx) DeleteDraft(_ context.Context, id string) error {
	inv, ok := t.m.st.invoices[id]
	if !ok || inv.Status != StatusDraft {
		return ErrNotDraft
	}
	delete(t.m.st.invoices, id)
	return nil
}

func (t memTx) AddPaid(_ context.Context, id string, amount decimal.Decimal) (Invoice, error) {
	inv, ok := t.m.st.invoices[id]
	if !ok || (inv.Status != StatusIssued && inv.Status != StatusPartiallyPaid) {
		return Invoice{}, ErrOverpayment
	}
	if inv.PaidTotal.Add(inv.CreditedTotal).Add(amount).GreaterThan(inv.Total) {
		return Invoice{}, ErrOverpayment
	}
	inv.PaidTotal = inv.PaidTotal.Add(amount)
	t.m.st.invoices[id] = inv
	return inv, nil
}

func (t memTx) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	p.ID = t.m.st.id("pay")
	t.m.st.payments = append(t.m.st.payments, p)
	return p, nil
}

func (t memTx) AddCredited(_ context.Context, id string, amount decimal.Decimal) (Invoice, error) {
	inv, ok := t.m.st.invoices[id]
	if !ok || inv.PaidTotal.Add(inv.CreditedTotal).Add(amount).GreaterThan(inv.Total) {
		return Invoice{}, ErrCreditExceeds
	}
	inv.CreditedTotal = inv.CreditedTotal.Add(amount)
	t.m.st.invoices[id] = inv
	return inv, nil
}

func (t memTx) AddItemCredited(_ context.Context, itemID string, qty decimal.Decimal) error {
	for id, inv := range t.m.st.invoices {
		for i, it := range inv.Items {
			if it.ID != itemID {
				continue
			}
			if it.CreditedQty.Add(qty).GreaterThan(it.Quantity) {
				return ErrCreditExceeds
			}
			inv.Items[i].CreditedQty = it.CreditedQty.Add(qty)
			t.m.st.invoices[id] = inv
			return nil
		}
	}
	return ErrCreditExceeds
}

func (t memTx) InsertCreditNote(_ context.Context, cn CreditNote) (CreditNote, error) {
	cn.ID = t.m.st.id("cn")
	cn.CreatedAt = time.Now()
	t.m.st.notes[cn.ID] = cn
	return cn, nil
}

func (t memTx) InsertCreditNoteItem(_ context.Context, it CreditNoteItem) (CreditNoteItem, error) {
	cn := t.m.st.notes[it.CreditNoteID]
	it.ID = t.m.st.id("cni")
	cn.Items = append(cn.Items, it)
	t.m.st.notes[cn.ID] = cn
	return it, nil
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
