package banking

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestCreateAccountBooksOpeningBalance(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Current", IFSC: "hdfc0001234", OpeningBalance: d("5000")})
	require.NoError(t, err)
	assert.Equal(t, "HDFC0001234", acct.IFSC)
	assert.Equal(t, DefaultCurrency, acct.Currency)
	assert.True(t, d("5000").Equal(acct.Balance))
	require.Len(t, repo.st.txns, 1)
	assert.Equal(t, refOpening, repo.st.txns[0].RefModule)

	empty, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Petty"})
	require.NoError(t, err)
	assert.True(t, empty.Balance.IsZero())
	assert.Len(t, repo.st.txns, 1)

	_, err = svc.CreateAccount(ctx, "u1", AccountInput{Name: "Bad", OpeningBalance: d("-1")})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateAccount(ctx, "u1", AccountInput{Name: "Bad", IFSC: "short"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordTransactionKeepsRunningBalance(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	acct, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Current", OpeningBalance: d("1000")})
	require.NoError(t, err)

	dep, err := svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: Credit, Amount: d("250.505")})
	require.NoError(t, err)
	assert.True(t, d("250.51").Equal(dep.Amount))
	assert.True(t, d("1250.51").Equal(dep.Balance))

	wd, err := svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: Debit, Amount: d("1250.51")})
	require.NoError(t, err)
	assert.True(t, wd.Balance.IsZero())

	_, err = svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: Debit, Amount: d("0.01")})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, repo.st.txns, 3)

	_, err = svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: Credit, Amount: d("0")})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: "sideways", Amount: d("1")})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RecordTransaction(ctx, "u1", "missing", TransactionInput{Direction: Credit, Amount: d("1")})
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.NoError(t, svc.DeactivateAccount(ctx, acct.ID))
	_, err = svc.RecordTransaction(ctx, "u1", acct.ID, TransactionInput{Direction: Credit, Amount: d("1")})
	require.ErrorIs(t, err, ErrAccountInactive)

	accounts, err := svc.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestTransferIsAtomic(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	from, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Current", OpeningBalance: d("300")})
	require.NoError(t, err)
	to, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Savings"})
	require.NoError(t, err)

	legs, err := svc.Transfer(ctx, "u1", TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("200")})
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, legs[0].RefID, legs[1].RefID)
	assert.True(t, d("100").Equal(repo.balance(from.ID)))
	assert.True(t, d("200").Equal(repo.balance(to.ID)))

	before := len(repo.st.txns)
	_, err = svc.Transfer(ctx, "u1", TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("150")})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, repo.st.txns, before)
	assert.True(t, d("100").Equal(repo.balance(from.ID)))
	assert.True(t, d("200").Equal(repo.balance(to.ID)))

	_, err = svc.Transfer(ctx, "u1", TransferInput{FromAccountID: from.ID, ToAccountID: from.ID, Amount: d("1")})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExpensePaidFromAccount(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	acct, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Current", OpeningBalance: d("1000")})
	require.NoError(t, err)
	rent, err := svc.CreateCategory(ctx, CategoryInput{Name: "Rent"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Rent"})
	require.ErrorIs(t, err, ErrDuplicateCategory)

	exp, err := svc.CreateExpense(ctx, "u1", ExpenseInput{
		CategoryID: rent.ID, AccountID: acct.ID, Amount: d("400"), PaymentMethod: "bank_transfer", Payee: "Landlord",
	})
	require.NoError(t, err)
	assert.Equal(t, "EXP-000001", exp.Number)
	assert.NotEmpty(t, exp.TransactionID)
	assert.True(t, d("600").Equal(repo.balance(acct.ID)))

	cash, err := svc.CreateExpense(ctx, "u1", ExpenseInput{CategoryID: rent.ID, Amount: d("50"), PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Empty(t, cash.TransactionID)
	assert.True(t, d("600").Equal(repo.balance(acct.ID)))

	_, err = svc.CreateExpense(ctx, "u1", ExpenseInput{CategoryID: rent.ID, AccountID: acct.ID, Amount: d("601"), PaymentMethod: "upi"})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, repo.st.expenses, 2)
	assert.Equal(t, int64(2), repo.st.seq["expense"], "failed expense must not consume a number")

	rows, total, err := svc.ExpenseSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Count)
	assert.True(t, d("450").Equal(total))

	require.ErrorIs(t, svc.DeleteCategory(ctx, rent.ID), ErrCategoryInUse)

	require.NoError(t, svc.DeleteExpense(ctx, "u1", exp.ID))
	assert.True(t, d("1000").Equal(repo.balance(acct.ID)))
	last := repo.st.txns[len(repo.st.txns)-1]
	assert.Equal(t, refReversal, last.RefModule)
	assert.Equal(t, exp.TransactionID, last.RefID)
}

func TestReconciledExpenseCannotBeDeleted(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	acct, err := svc.CreateAccount(ctx, "u1", AccountInput{Name: "Current", OpeningBalance: d("100")})
	require.NoError(t, err)
	cat, err := svc.CreateCategory(ctx, CategoryInput{Name: "Utilities"})
	require.NoError(t, err)
	exp, err := svc.CreateExpense(ctx, "u1", ExpenseInput{CategoryID: cat.ID, AccountID: acct.ID, Amount: d("30"), PaymentMethod: "upi"})
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, exp.TransactionID, true)
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteExpense(ctx, "u1", exp.ID), ErrReconciled)
	assert.True(t, d("70").Equal(repo.balance(acct.ID)))

	_, err = svc.UpdateCategory(ctx, cat.ID, CategoryInput{Name: "Utilities"}, false)
	require.NoError(t, err)
	_, err = svc.CreateExpense(ctx, "u1", ExpenseInput{CategoryID: cat.ID, Amount: d("1"), PaymentMethod: "cash"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
