package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
)

const (
	accountColumns = `id::text, name, COALESCE(bank_name, ''), COALESCE(account_number, ''), COALESCE(ifsc, ''), currency,
opening_balance, balance, is_active, created_at, updated_at`
	txnColumns = `id::text, account_id::text, direction, amount, balance_after, COALESCE(reference, ''), COALESCE(description, ''),
COALESCE(ref_module, ''), COALESCE(ref_id, ''), txn_date, reconciled, COALESCE(created_by::text, ''), created_at`
	expenseColumns = `id::text, number, category_id::text, COALESCE(account_id::text, ''), COALESCE(transaction_id::text, ''),
amount, payment_method, COALESCE(payee, ''), expense_date, COALESCE(description, ''), COALESCE(created_by::text, ''), created_at`
)

// TxRepository is the set of statements run inside a ledger transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, a Account) (Account, error)
	AddBalance(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	CategoryActive(ctx context.Context, id string) (bool, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	LockExpense(ctx context.Context, id string) (Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// Sequencer hands out document numbers.
type Sequencer interface {
	Next(ctx context.Context, name string) (string, error)
}

// ActivityRecorder abstracts activity logging.
type ActivityRecorder interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// TxScope groups the repositories bound to one transaction.
type TxScope struct {
	Ledger   TxRepository
	Numbers  Sequencer
	Activity ActivityRecorder
}

// Repository persists accounts, ledger entries and expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	conn db.DBTX
}

type txSequencer struct {
	conn db.DBTX
}

func (s txSequencer) Next(ctx context.Context, name string) (string, error) {
	return settings.NextNumber(ctx, s.conn, name)
}

// WithTx runs fn in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxScope{Ledger: &txRepo{conn: tx}, Numbers: txSequencer{conn: tx}, Activity: shared.NewActivityLogger(tx)})
	})
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.BankName, &a.AccountNumber, &a.IFSC, &a.Currency,
		&a.OpeningBalance, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanTxn(row pgx.Row) (Transaction, error) {
	var t Transaction
	var dir string
	err := row.Scan(&t.ID, &t.AccountID, &dir, &t.Amount, &t.Balance, &t.Reference, &t.Description,
		&t.RefModule, &t.RefID, &t.TxnDate, &t.Reconciled, &t.CreatedBy, &t.CreatedAt)
	t.Direction = Direction(dir)
	return t, err
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Number, &e.CategoryID, &e.AccountID, &e.TransactionID, &e.Amount, &e.PaymentMethod,
		&e.Payee, &e.ExpenseDate, &e.Description, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func (r *txRepo) InsertAccount(ctx context.Context, a Account) (Account, error) {
	created, err := scanAccount(r.conn.QueryRow(ctx, `
INSERT INTO bank_accounts (name, bank_name, account_number, ifsc, currency, opening_balance, balance)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, 0)
RETURNING `+accountColumns, a.Name, a.BankName, a.AccountNumber, a.IFSC, a.Currency, a.OpeningBalance))
	if err != nil {
		return Account{}, fmt.Errorf("banking: insert account: %w", err)
	}
	return created, nil
}

// AddBalance moves an active account's balance by delta in one conditional
// update. The balance never drops below zero.
func (r *txRepo) AddBalance(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.conn.QueryRow(ctx, `
UPDATE bank_accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1 AND is_active AND balance + $2 >= 0
RETURNING balance`, accountID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !db.IsNoRows(err) {
		return decimal.Zero, fmt.Errorf("banking: update balance: %w", err)
	}
	var active bool
	err = r.conn.QueryRow(ctx, `SELECT is_active FROM bank_accounts WHERE id = $1`, accountID).Scan(&active)
	switch {
	case db.IsNoRows(err):
		return decimal.Zero, ErrAccountNotFound
	case err != nil:
		return decimal.Zero, fmt.Errorf("banking: load account: %w", err)
	case !active:
		return decimal.Zero, ErrAccountInactive
	default:
		return decimal.Zero, ErrInsufficientFunds
	}
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	created, err := scanTxn(r.conn.QueryRow(ctx, `
INSERT INTO bank_transactions (account_id, direction, amount, balance_after, reference, description, ref_module, ref_id, txn_date, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, '')::uuid)
RETURNING `+txnColumns, t.AccountID, string(t.Direction), t.Amount, t.Balance, t.Reference, t.Description,
		t.RefModule, t.RefID, t.TxnDate, t.CreatedBy))
	if err != nil {
		return Transaction{}, fmt.Errorf("banking: insert transaction: %w", err)
	}
	return created, nil
}

func (r *txRepo) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	t, err := scanTxn(r.conn.QueryRow(ctx, `SELECT `+txnColumns+` FROM bank_transactions WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("banking: lock transaction: %w", err)
	}
	return t, nil
}

func (r *txRepo) CategoryActive(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.conn.QueryRow(ctx, `SELECT is_active FROM expense_categories WHERE id = $1`, id).Scan(&active)
	if db.IsNoRows(err) {
		return false, ErrCategoryNotFound
	}
	if err != nil {
		return false, fmt.Errorf("banking: load category: %w", err)
	}
	return active, nil
}

func (r *txRepo) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	created, err := scanExpense(r.conn.QueryRow(ctx, `
INSERT INTO expenses (number, category_id, account_id, transaction_id, amount, payment_method, payee, expense_date, description, created_by)
VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, '')::uuid)
RETURNING `+expenseColumns, e.Number, e.CategoryID, e.AccountID, e.TransactionID, e.Amount, e.PaymentMethod,
		e.Payee, e.ExpenseDate, e.Description, e.CreatedBy))
	if err != nil {
		return Expense{}, fmt.Errorf("banking: insert expense: %w", err)
	}
	return created, nil
}

func (r *txRepo) LockExpense(ctx context.Context, id string) (Expense, error) {
	e, err := scanExpense(r.conn.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return Expense{}, ErrExpenseNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("banking: lock expense: %w", err)
	}
	return e, nil
}

func (r *txRepo) DeleteExpense(ctx context.Context, id string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("banking: delete expense: %w", err)
	}
	return nil
}

// ListAccounts returns accounts ordered by name.
func (r *Repository) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE $1 OR is_active ORDER BY name`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("banking: list accounts: %w", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccount loads one account.
func (r *Repository) GetAccount(ctx context.Context, id string) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("banking: get account: %w", err)
	}
	return a, nil
}

// UpdateAccount applies a patch. Balances are only changed through the ledger.
func (r *Repository) UpdateAccount(ctx context.Context, id string, p AccountPatch) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
UPDATE bank_accounts SET
    name = COALESCE($2, name),
    bank_name = COALESCE($3, bank_name),
    account_number = COALESCE($4, account_number),
    ifsc = COALESCE($5, ifsc),
    is_active = COALESCE($6, is_active),
    updated_at = NOW()
WHERE id = $1
RETURNING `+accountColumns, id, p.Name, p.BankName, p.AccountNumber, p.IFSC, p.IsActive))
	if db.IsNoRows(err) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("banking: update account: %w", err)
	}
	return a, nil
}

// ListTransactions returns ledger entries, newest first.
func (r *Repository) ListTransactions(ctx context.Context, f TransactionFilters) ([]Transaction, int, error) {
	where := `WHERE ($1 = '' OR account_id::text = $1)
  AND ($2::timestamptz IS NULL OR txn_date >= $2)
  AND ($3::timestamptz IS NULL OR txn_date < $3)
  AND ($4::boolean IS NULL OR reconciled = $4)`
	args := []any{f.AccountID, nullTime(f.From), nullTime(f.To), f.Reconciled}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("banking: count transactions: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM bank_transactions `+where+`
ORDER BY txn_date DESC, created_at DESC
LIMIT $5 OFFSET $6`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("banking: list transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// SetReconciled flags an entry as matched against the bank statement.
func (r *Repository) SetReconciled(ctx context.Context, id string, reconciled bool) (Transaction, error) {
	t, err := scanTxn(r.pool.QueryRow(ctx, `UPDATE bank_transactions SET reconciled = $2 WHERE id = $1 RETURNING `+txnColumns, id, reconciled))
	if db.IsNoRows(err) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("banking: reconcile: %w", err)
	}
	return t, nil
}

// ListCategories returns expense categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, COALESCE(description, ''), is_active
FROM expense_categories WHERE $1 OR is_active ORDER BY name`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("banking: list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO expense_categories (name, description) VALUES ($1, NULLIF($2, ''))
RETURNING id::text, is_active`, c.Name, c.Description).Scan(&c.ID, &c.IsActive)
	if db.IsUniqueViolation(err) {
		return Category{}, ErrDuplicateCategory
	}
	if err != nil {
		return Category{}, fmt.Errorf("banking: create category: %w", err)
	}
	return c, nil
}

// UpdateCategory renames or toggles a category.
func (r *Repository) UpdateCategory(ctx context.Context, c Category) (Category, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE expense_categories SET name = $2, description = NULLIF($3, ''), is_active = $4 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.IsActive)
	if db.IsUniqueViolation(err) {
		return Category{}, ErrDuplicateCategory
	}
	if err != nil {
		return Category{}, fmt.Errorf("banking: update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Category{}, ErrCategoryNotFound
	}
	return c, nil
}

// DeleteCategory removes a category no expense references.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expense_categories WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrCategoryInUse
	}
	if err != nil {
		return fmt.Errorf("banking: delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// GetExpense loads one expense.
func (r *Repository) GetExpense(ctx context.Context, id string) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Expense{}, ErrExpenseNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("banking: get expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns expenses, newest first.
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilters) ([]Expense, int, error) {
	where := `WHERE ($1 = '' OR category_id::text = $1)
  AND ($2::timestamptz IS NULL OR expense_date >= $2)
  AND ($3::timestamptz IS NULL OR expense_date < $3)`
	args := []any{f.CategoryID, nullTime(f.From), nullTime(f.To)}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("banking: count expenses: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses `+where+`
ORDER BY expense_date DESC, created_at DESC
LIMIT $4 OFFSET $5`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("banking: list expenses: %w", err)
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// ExpenseSummary totals expenses per category over [from, to).
func (r *Repository) ExpenseSummary(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `
SELECT c.id::text, c.name, COUNT(e.id), COALESCE(SUM(e.amount), 0)
FROM expense_categories c
JOIN expenses e ON e.category_id = c.id
WHERE ($1::timestamptz IS NULL OR e.expense_date >= $1)
  AND ($2::timestamptz IS NULL OR e.expense_date < $2)
GROUP BY c.id, c.name
ORDER BY 4 DESC`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("banking: expense summary: %w", err)
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.Name, &t.Count, &t.Total); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
