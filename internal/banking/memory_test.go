package banking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

type store struct {
	accounts   map[string]Account
	txns       []Transaction
	categories map[string]Category
	expenses   map[string]Expense
	seq        map[string]int64
	activity   []shared.ActivityEntry
	nextID     int
}

func newStore() *store {
	return &store{accounts: map[string]Account{}, categories: map[string]Category{}, expenses: map[string]Expense{}, seq: map[string]int64{}}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.txns = append(c.txns, s.txns...)
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
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
	return fmt.Sprintf("%s-%02d", prefix, s.nextID)
}

type memRepo struct {
	st *store
}

func newMemRepo() *memRepo { return &memRepo{st: newStore()} }

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	snapshot := m.st.clone()
	if err := fn(ctx, TxScope{Ledger: memLedger{m}, Numbers: memNumbers{m}, Activity: memActivity{m}}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memRepo) ListAccounts(_ context.Context, includeInactive bool) ([]Account, error) {
	var out []Account
	for _, a := range m.st.accounts {
		if includeInactive || a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) GetAccount(_ context.Context, id string) (Account, error) {
	a, ok := m.st.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memRepo) UpdateAccount(_ context.Context, id string, p AccountPatch) (Account, error) {
	a, ok := m.st.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.BankName != nil {
		a.BankName = *p.BankName
	}
	if p.AccountNumber != nil {
		a.AccountNumber = *p.AccountNumber
	}
	if p.IFSC != nil {
		a.IFSC = *p.IFSC
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	m.st.accounts[id] = a
	return a, nil
}

func (m *memRepo) ListTransactions(_ context.Context, f TransactionFilters) ([]Transaction, int, error) {
	var out []Transaction
	for _, t := range m.st.txns {
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if f.Reconciled != nil && t.Reconciled != *f.Reconciled {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memRepo) SetReconciled(_ context.Context, id string, reconciled bool) (Transaction, error) {
	for i, t := range m.st.txns {
		if t.ID == id {
			m.st.txns[i].Reconciled = reconciled
			return m.st.txns[i], nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (m *memRepo) ListCategories(_ context.Context, includeInactive bool) ([]Category, error) {
	var out []Category
	for _, c := range m.st.categories {
		if includeInactive || c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) CreateCategory(_ context.Context, c Category) (Category, error) {
	for _, existing := range m.st.categories {
		if existing.Name == c.Name {
			return Category{}, ErrDuplicateCategory
		}
	}
	c.ID = m.st.id("cat")
	c.IsActive = true
	m.st.categories[c.ID] = c
	return c, nil
}

func (m *memRepo) UpdateCategory(_ context.Context, c Category) (Category, error) {
	if _, ok := m.st.categories[c.ID]; !ok {
		return Category{}, ErrCategoryNotFound
	}
	m.st.categories[c.ID] = c
	return c, nil
}

func (m *memRepo) DeleteCategory(_ context.Context, id string) error {
	if _, ok := m.st.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	for _, e := range m.st.expenses {
		if e.CategoryID == id {
			return ErrCategoryInUse
		}
	}
	delete(m.st.categories, id)
	return nil
}

func (m *memRepo) GetExpense(_ context.Context, id string) (Expense, error) {
	e, ok := m.st.expenses[id]
	if !ok {
		return Expense{}, ErrExpenseNotFound
	}
	return e, nil
}

func (m *memRepo) ListExpenses(_ context.Context, f ExpenseFilters) ([]Expense, int, error) {
	var out []Expense
	for _, e := range m.st.expenses {
		if f.CategoryID != "" && e.CategoryID != f.CategoryID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memRepo) ExpenseSummary(_ context.Context, from, to time.Time) ([]CategoryTotal, error) {
	byCat := map[string]*CategoryTotal{}
	for _, e := range m.st.expenses {
		if (!from.IsZero() && e.ExpenseDate.Before(from)) || (!to.IsZero() && !e.ExpenseDate.Before(to)) {
			continue
		}
		row, ok := byCat[e.CategoryID]
		if !ok {
			row = &CategoryTotal{CategoryID: e.CategoryID, Name: m.st.categories[e.CategoryID].Name}
			byCat[e.CategoryID] = row
		}
		row.Count++
		row.Total = row.Total.Add(e.Amount)
	}
	var out []CategoryTotal
	for _, row := range byCat {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	return out, nil
}

func (m *memRepo) balance(id string) decimal.Decimal {
	return m.st.accounts[id].Balance
}

type memLedger struct{ m *memRepo }

func (l memLedger) InsertAccount(_ context.Context, a Account) (Account, error) {
	a.ID = l.m.st.id("acct")
	a.IsActive = true
	a.Balance = decimal.Zero
	a.CreatedAt = time.Now()
	l.m.st.accounts[a.ID] = a
	return a, nil
}

func (l memLedger) AddBalance(_ context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	a, ok := l.m.st.accounts[accountID]
	switch {
	case !ok:
		return decimal.Zero, ErrAccountNotFound
	case !a.IsActive:
		return decimal.Zero, ErrAccountInactive
	case a.Balance.Add(delta).IsNegative():
		return decimal.Zero, ErrInsufficientFunds
	}
	a.Balance = a.Balance.Add(delta)
	l.m.st.accounts[accountID] = a
	return a.Balance, nil
}

func (l memLedger) InsertTransaction(_ context.Context, t Transaction) (Transaction, error) {
	t.ID = l.m.st.id("txn")
	t.CreatedAt = time.Now()
	l.m.st.txns = append(l.m.st.txns, t)
	return t, nil
}

func (l memLedger) LockTransaction(_ context.Context, id string) (Transaction, error) {
	for _, t := range l.m.st.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (l memLedger) CategoryActive(_ context.Context, id string) (bool, error) {
	c, ok := l.m.st.categories[id]
	if !ok {
		return false, ErrCategoryNotFound
	}
	return c.IsActive, nil
}

func (l memLedger) InsertExpense(_ context.Context, e Expense) (Expense, error) {
	e.ID = l.m.st.id("exp")
	e.CreatedAt = time.Now()
	l.m.st.expenses[e.ID] = e
	return e, nil
}

func (l memLedger) LockExpense(ctx context.Context, id string) (Expense, error) {
	return l.m.GetExpense(ctx, id)
}

func (l memLedger) DeleteExpense(_ context.Context, id string) error {
	delete(l.m.st.expenses, id)
	return nil
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
