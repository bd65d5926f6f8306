package banking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

// DefaultCurrency applies when an account is created without one.
const DefaultCurrency = "INR"

const (
	refTransfer = "banking.transfer"
	refExpense  = "banking.expense"
	refReversal = "banking.reversal"
	refOpening  = "banking.opening"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	UpdateAccount(ctx context.Context, id string, p AccountPatch) (Account, error)
	ListTransactions(ctx context.Context, f TransactionFilters) ([]Transaction, int, error)
	SetReconciled(ctx context.Context, id string, reconciled bool) (Transaction, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
	GetExpense(ctx context.Context, id string) (Expense, error)
	ListExpenses(ctx context.Context, f ExpenseFilters) ([]Expense, int, error)
	ExpenseSummary(ctx context.Context, from, to time.Time) ([]CategoryTotal, error)
}

// Service keeps the bank ledger and store expenses.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger, now: time.Now}
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ListAccounts returns bank accounts.
func (s *Service) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	return s.repo.ListAccounts(ctx, includeInactive)
}

// GetAccount returns one account.
func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// CreateAccount opens an account. A positive opening balance is booked as the
// first ledger entry so the running balance always matches the ledger.
func (s *Service) CreateAccount(ctx context.Context, actorID string, in AccountInput) (Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.IFSC = strings.ToUpper(strings.TrimSpace(in.IFSC))
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := s.check(in); err != nil {
		return Account{}, err
	}
	if in.OpeningBalance.IsNegative() {
		return Account{}, fmt.Errorf("%w: opening balance cannot be negative", ErrInvalidInput)
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		account, err = sc.Ledger.InsertAccount(ctx, Account{
			Name: in.Name, BankName: in.BankName, AccountNumber: in.AccountNumber, IFSC: in.IFSC,
			Currency: in.Currency, OpeningBalance: in.OpeningBalance,
		})
		if err != nil {
			return err
		}
		if in.OpeningBalance.IsPositive() {
			t, err := s.post(ctx, sc, Transaction{
				AccountID: account.ID, Direction: Credit, Amount: in.OpeningBalance, Description: "Opening balance",
				RefModule: refOpening, TxnDate: s.now().UTC(), CreatedBy: actorID,
			})
			if err != nil {
				return err
			}
			account.Balance = t.Balance
		}
		return record(ctx, sc, actorID, "bank_account.created", "bank_account", account.ID, map[string]any{"name": account.Name})
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// UpdateAccount patches account details.
func (s *Service) UpdateAccount(ctx context.Context, id string, p AccountPatch) (Account, error) {
	if p.IFSC != nil {
		v := strings.ToUpper(strings.TrimSpace(*p.IFSC))
		p.IFSC = &v
	}
	if err := s.check(p); err != nil {
		return Account{}, err
	}
	return s.repo.UpdateAccount(ctx, id, p)
}

// DeactivateAccount soft-deletes an account so its ledger stays readable.
func (s *Service) DeactivateAccount(ctx context.Context, id string) error {
	inactive := false
	_, err := s.repo.UpdateAccount(ctx, id, AccountPatch{IsActive: &inactive})
	return err
}

// post applies one entry to the balance and stores it with the resulting
// running balance.
func (s *Service) post(ctx context.Context, sc TxScope, t Transaction) (Transaction, error) {
	balance, err := sc.Ledger.AddBalance(ctx, t.AccountID, t.Signed())
	if err != nil {
		return Transaction{}, err
	}
	t.Balance = balance
	return sc.Ledger.InsertTransaction(ctx, t)
}

// RecordTransaction books a manual deposit or withdrawal.
func (s *Service) RecordTransaction(ctx context.Context, actorID, accountID string, in TransactionInput) (Transaction, error) {
	if err := s.check(in); err != nil {
		return Transaction{}, err
	}
	if !in.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.TxnDate.IsZero() {
		in.TxnDate = s.now().UTC()
	}
	var t Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		var err error
		t, err = s.post(ctx, sc, Transaction{
			AccountID: accountID, Direction: in.Direction, Amount: in.Amount.Round(2), Reference: in.Reference,
			Description: in.Description, TxnDate: in.TxnDate, CreatedBy: actorID,
		})
		if err != nil {
			return err
		}
		return record(ctx, sc, actorID, "bank_transaction.recorded", "bank_account", accountID,
			map[string]any{"direction": string(t.Direction), "amount": t.Amount.String()})
	})
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Transfer moves money between two accounts. Both legs share a reference id
// and commit together.
func (s *Service) Transfer(ctx context.Context, actorID string, in TransferInput) ([]Transaction, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.TxnDate.IsZero() {
		in.TxnDate = s.now().UTC()
	}
	ref := uuid.NewString()
	legs := []Transaction{
		{AccountID: in.FromAccountID, Direction: Debit, Description: "Transfer out"},
		{AccountID: in.ToAccountID, Direction: Credit, Description: "Transfer in"},
	}
	// Touch rows in id order so concurrent opposite transfers cannot deadlock.
	if in.ToAccountID < in.FromAccountID {
		legs[0], legs[1] = legs[1], legs[0]
	}
	out := make([]Transaction, 0, 2)
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		for _, leg := range legs {
			leg.Amount = in.Amount.Round(2)
			leg.Reference = in.Reference
			leg.RefModule = refTransfer
			leg.RefID = ref
			leg.TxnDate = in.TxnDate
			leg.CreatedBy = actorID
			t, err := s.post(ctx, sc, leg)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return record(ctx, sc, actorID, "bank_transfer.recorded", "bank_account", in.FromAccountID,
			map[string]any{"to": in.ToAccountID, "amount": in.Amount.String(), "ref": ref})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transactions lists ledger entries.
func (s *Service) Transactions(ctx context.Context, f TransactionFilters) ([]Transaction, int, error) {
	return s.repo.ListTransactions(ctx, f)
}

// Reconcile marks an entry as matched or unmatched against a statement.
func (s *Service) Reconcile(ctx context.Context, id string, reconciled bool) (Transaction, error) {
	return s.repo.SetReconciled(ctx, id, reconciled)
}

// ListCategories returns expense categories.
func (s *Service) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	return s.repo.ListCategories(ctx, includeInactive)
}

// CreateCategory adds an expense category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return Category{}, err
	}
	return s.repo.CreateCategory(ctx, Category{Name: in.Name, Description: in.Description})
}

// UpdateCategory renames a category or toggles it.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput, active bool) (Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return Category{}, err
	}
	return s.repo.UpdateCategory(ctx, Category{ID: id, Name: in.Name, Description: in.Description, IsActive: active})
}

// DeleteCategory removes an unused category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.repo.DeleteCategory(ctx, id)
}

// CreateExpense records an expense. When paid from a bank account the debit
// is posted in the same transaction.
func (s *Service) CreateExpense(ctx context.Context, actorID string, in ExpenseInput) (Expense, error) {
	if err := s.check(in); err != nil {
		return Expense{}, err
	}
	if !in.Amount.IsPositive() {
		return Expense{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if in.ExpenseDate.IsZero() {
		in.ExpenseDate = s.now().UTC()
	}
	var expense Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		active, err := sc.Ledger.CategoryActive(ctx, in.CategoryID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("%w: category is inactive", ErrInvalidInput)
		}
		number, err := sc.Numbers.Next(ctx, settings.SequenceExpense)
		if err != nil {
			return err
		}
		e := Expense{
			Number: number, CategoryID: in.CategoryID, AccountID: in.AccountID, Amount: in.Amount.Round(2),
			PaymentMethod: in.PaymentMethod, Payee: in.Payee, ExpenseDate: in.ExpenseDate,
			Description: in.Description, CreatedBy: actorID,
		}
		if e.AccountID != "" {
			t, err := s.post(ctx, sc, Transaction{
				AccountID: e.AccountID, Direction: Debit, Amount: e.Amount, Reference: number,
				Description: expenseDescription(e), RefModule: refExpense, RefID: number,
				TxnDate: e.ExpenseDate, CreatedBy: actorID,
			})
			if err != nil {
				return err
			}
			e.TransactionID = t.ID
		}
		if expense, err = sc.Ledger.InsertExpense(ctx, e); err != nil {
			return err
		}
		return record(ctx, sc, actorID, "expense.created", "expense", expense.ID,
			map[string]any{"number": number, "amount": expense.Amount.String()})
	})
	if err != nil {
		return Expense{}, err
	}
	return expense, nil
}

func expenseDescription(e Expense) string {
	if e.Payee != "" {
		return "Expense " + e.Number + " to " + e.Payee
	}
	return "Expense " + e.Number
}

// DeleteExpense removes an expense and credits back its bank debit. Expenses
// whose debit was reconciled are kept.
func (s *Service) DeleteExpense(ctx context.Context, actorID, id string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		e, err := sc.Ledger.LockExpense(ctx, id)
		if err != nil {
			return err
		}
		if e.TransactionID != "" {
			original, err := sc.Ledger.LockTransaction(ctx, e.TransactionID)
			if err != nil {
				return err
			}
			if original.Reconciled {
				return ErrReconciled
			}
			if _, err := s.post(ctx, sc, Transaction{
				AccountID: original.AccountID, Direction: Credit, Amount: original.Amount, Reference: e.Number,
				Description: "Reversal of " + e.Number, RefModule: refReversal, RefID: original.ID,
				TxnDate: s.now().UTC(), CreatedBy: actorID,
			}); err != nil {
				return err
			}
		}
		if err := sc.Ledger.DeleteExpense(ctx, id); err != nil {
			return err
		}
		return record(ctx, sc, actorID, "expense.deleted", "expense", id, map[string]any{"number": e.Number})
	})
}

// GetExpense returns one expense.
func (s *Service) GetExpense(ctx context.Context, id string) (Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// ListExpenses returns a page of expenses.
func (s *Service) ListExpenses(ctx context.Context, f ExpenseFilters) ([]Expense, int, error) {
	return s.repo.ListExpenses(ctx, f)
}

// ExpenseSummary totals expenses per category over [from, to).
func (s *Service) ExpenseSummary(ctx context.Context, from, to time.Time) ([]CategoryTotal, decimal.Decimal, error) {
	rows, err := s.repo.ExpenseSummary(ctx, from, to)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Total)
	}
	return rows, total, nil
}

func record(ctx context.Context, sc TxScope, actorID, action, entity, id string, meta map[string]any) error {
	if sc.Activity == nil {
		return nil
	}
	return sc.Activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: entity, EntityID: id, Meta: meta})
}
