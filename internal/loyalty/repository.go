package loyalty

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// Repository persists loyalty accounts and transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{conn: tx})
	})
}

// TxRepository holds the statements of a points movement.
type TxRepository interface {
	LockAccount(ctx context.Context, customerID string) (Account, error)
	AddPoints(ctx context.Context, customerID string, delta int64, earned int64) (Account, error)
	SetTier(ctx context.Context, customerID, tier string) error
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
}

type txRepo struct {
	conn db.DBTX
}

// GetAccount loads an account.
func (r *Repository) GetAccount(ctx context.Context, customerID string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `
SELECT customer_id::text, points, lifetime_points, COALESCE(tier, ''), updated_at
FROM loyalty_accounts WHERE customer_id = $1`, customerID).Scan(&a.CustomerID, &a.Points, &a.LifetimePoints, &a.Tier, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("loyalty: get account: %w", err)
	}
	return a, nil
}

// ListTransactions returns a customer's history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, customer_id::text, type, points, balance, COALESCE(ref_type, ''), COALESCE(ref_id, ''),
       COALESCE(note, ''), COALESCE(created_by::text, ''), created_at
FROM loyalty_transactions
WHERE customer_id = $1
ORDER BY created_at DESC
LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("loyalty: list transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.CustomerID, &typ, &t.Points, &t.Balance, &t.RefType, &t.RefID, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TxType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddPoints applies delta in one conditional upsert. The balance never goes
// below zero; earned is added to lifetime points.
func (r *txRepo) AddPoints(ctx context.Context, customerID string, delta, earned int64) (Account, error) {
	var a Account
	err := r.conn.QueryRow(ctx, `
INSERT INTO loyalty_accounts (customer_id, points, lifetime_points, updated_at)
SELECT $1, $2, $3, NOW() WHERE $2 >= 0
ON CONFLICT (customer_id) DO UPDATE
SET points = loyalty_accounts.points + $2,
    lifetime_points = loyalty_accounts.lifetime_points + $3,
    updated_at = NOW()
WHERE loyalty_accounts.points + $2 >= 0
RETURNING customer_id::text, points, lifetime_points, COALESCE(tier, ''), updated_at`, customerID, delta, earned).
		Scan(&a.CustomerID, &a.Points, &a.LifetimePoints, &a.Tier, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return Account{}, ErrInsufficientPoints
	}
	if err != nil {
		return Account{}, fmt.Errorf("loyalty: add points: %w", err)
	}
	return a, nil
}

func (r *txRepo) LockAccount(ctx context.Context, customerID string) (Account, error) {
	var a Account
	err := r.conn.QueryRow(ctx, `
SELECT customer_id::text, points, lifetime_points, COALESCE(tier, ''), updated_at
FROM loyalty_accounts WHERE customer_id = $1
FOR UPDATE`, customerID).Scan(&a.CustomerID, &a.Points, &a.LifetimePoints, &a.Tier, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return Account{CustomerID: customerID}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("loyalty: lock account: %w", err)
	}
	return a, nil
}

func (r *txRepo) SetTier(ctx context.Context, customerID, tier string) error {
	_, err := r.conn.Exec(ctx, `UPDATE loyalty_accounts SET tier = $2 WHERE customer_id = $1`, customerID, tier)
	if err != nil {
		return fmt.Errorf("loyalty: set tier: %w", err)
	}
	return nil
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO loyalty_transactions (customer_id, type, points, balance, ref_type, ref_id, note, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::uuid)
RETURNING id::text, created_at`, t.CustomerID, string(t.Type), t.Points, t.Balance, t.RefType, t.RefID, t.Note, t.CreatedBy).
		Scan(&t.ID, &t.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Transaction{}, ErrAlreadyApplied
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("loyalty: insert transaction: %w", err)
	}
	return t, nil
}
