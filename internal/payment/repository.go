package payment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

const sessionColumns = `id::text, reference, transaction_id, amount, COALESCE(phone, ''), state, COALESCE(reason, ''),
COALESCE(redirect_url, ''), polls, COALESCE(retry_of::text, ''), COALESCE(created_by::text, ''), created_at, updated_at, finished_at`

// Store persists payment sessions.
type Store interface {
	Insert(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	GetByTransaction(ctx context.Context, txnID string) (Session, error)
	// Transition saves next only when the stored state still equals from,
	// adding addPolls to the stored poll count rather than overwriting it.
	// It returns the stored row, or false when another writer moved the
	// session first.
	Transition(ctx context.Context, from State, next Session, addPolls int) (Session, bool, error)
	ListOpen(ctx context.Context, limit int) ([]Session, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	var state string
	err := row.Scan(&s.ID, &s.Reference, &s.TransactionID, &s.Amount, &s.Phone, &state, &s.Reason,
		&s.RedirectURL, &s.Polls, &s.RetryOf, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.FinishedAt)
	s.State = State(state)
	return s, err
}

func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	created, err := scanSession(r.pool.QueryRow(ctx, `
INSERT INTO payment_sessions (reference, transaction_id, amount, phone, state, retry_of, created_by)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid)
RETURNING `+sessionColumns, s.Reference, s.TransactionID, s.Amount, s.Phone, string(s.State), s.RetryOf, s.CreatedBy))
	if err != nil {
		return Session{}, fmt.Errorf("payment: insert session: %w", err)
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("payment: get session: %w", err)
	}
	return s, nil
}

func (r *Repository) GetByTransaction(ctx context.Context, txnID string) (Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE transaction_id = $1`, txnID))
	if db.IsNoRows(err) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("payment: get session by transaction: %w", err)
	}
	return s, nil
}

func (r *Repository) Transition(ctx context.Context, from State, next Session, addPolls int) (Session, bool, error) {
	stored, err := scanSession(r.pool.QueryRow(ctx, `
UPDATE payment_sessions
SET state = $3, reason = NULLIF($4, ''), redirect_url = NULLIF($5, ''), polls = polls + $6, finished_at = $7, updated_at = NOW()
WHERE id = $1 AND state = $2
RETURNING `+sessionColumns, next.ID, string(from), string(next.State), next.Reason, next.RedirectURL, addPolls, next.FinishedAt))
	if db.IsNoRows(err) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("payment: transition session: %w", err)
	}
	return stored, true, nil
}

// ListOpen returns sessions still waiting for a gateway verdict, oldest first.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM payment_sessions
WHERE state IN ('initiating', 'pending')
ORDER BY created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("payment: list open sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
