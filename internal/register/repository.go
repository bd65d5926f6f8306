package register

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

const shiftColumns = `id::text, register, status, opened_by::text, opening_float, expected_cash, counted_cash, variance,
COALESCE(variance_class, ''), COALESCE(notes, ''), opened_at, closed_at, COALESCE(closed_by::text, '')`

// Repository persists shifts and drawer operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the set of statements run inside a drawer transaction.
type TxRepository interface {
	InsertShift(ctx context.Context, s Shift) (Shift, error)
	LockOpenShift(ctx context.Context, id string) (Shift, error)
	AddExpected(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)
	InsertOperation(ctx context.Context, op Operation) (Operation, error)
	CloseShift(ctx context.Context, s Shift) error
}

type txRepo struct {
	conn db.DBTX
}

// NewTxRepository binds the drawer statements to conn.
func NewTxRepository(conn db.DBTX) TxRepository {
	return &txRepo{conn: conn}
}

// WithTx runs fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{conn: tx})
	})
}

func scanShift(row pgx.Row) (Shift, error) {
	var s Shift
	var status string
	err := row.Scan(&s.ID, &s.Register, &status, &s.OpenedBy, &s.OpeningFloat, &s.ExpectedCash, &s.CountedCash, &s.Variance,
		&s.VarianceClass, &s.Notes, &s.OpenedAt, &s.ClosedAt, &s.ClosedBy)
	s.Status = ShiftStatus(status)
	return s, err
}

// GetShift loads a shift by id.
func (r *Repository) GetShift(ctx context.Context, id string) (Shift, error) {
	s, err := scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM cash_register_shifts WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Shift{}, ErrNotFound
	}
	if err != nil {
		return Shift{}, fmt.Errorf("register: get shift: %w", err)
	}
	return s, nil
}

// CurrentShift returns the open shift of a register.
func (r *Repository) CurrentShift(ctx context.Context, register string) (Shift, error) {
	s, err := scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM cash_register_shifts
WHERE register = $1 AND status = 'open'`, register))
	if db.IsNoRows(err) {
		return Shift{}, ErrShiftClosed
	}
	if err != nil {
		return Shift{}, fmt.Errorf("register: current shift: %w", err)
	}
	return s, nil
}

// ListShifts returns recent shifts, newest first.
func (r *Repository) ListShifts(ctx context.Context, register string, limit int) ([]Shift, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+shiftColumns+` FROM cash_register_shifts
WHERE ($1 = '' OR register = $1)
ORDER BY opened_at DESC
LIMIT $2`, register, limit)
	if err != nil {
		return nil, fmt.Errorf("register: list shifts: %w", err)
	}
	defer rows.Close()
	var out []Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListOperations returns a shift's drawer operations in order.
func (r *Repository) ListOperations(ctx context.Context, shiftID string) ([]Operation, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, shift_id::text, type, method, amount, COALESCE(reason, ''), COALESCE(ref_id, ''),
       COALESCE(created_by::text, ''), created_at
FROM cash_drawer_operations
WHERE shift_id = $1
ORDER BY created_at, id`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("register: list operations: %w", err)
	}
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		var op Operation
		var typ string
		if err := rows.Scan(&op.ID, &op.ShiftID, &typ, &op.Method, &op.Amount, &op.Reason, &op.RefID, &op.CreatedBy, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Type = OperationType(typ)
		out = append(out, op)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertShift(ctx context.Context, s Shift) (Shift, error) {
	created, err := scanShift(r.conn.QueryRow(ctx, `
INSERT INTO cash_register_shifts (register, status, opened_by, opening_float, expected_cash, notes)
VALUES ($1, 'open', $2, $3, $3, NULLIF($4, ''))
RETURNING `+shiftColumns, s.Register, s.OpenedBy, s.OpeningFloat, s.Notes))
	if db.IsUniqueViolation(err) {
		return Shift{}, ErrShiftAlreadyOpen
	}
	if err != nil {
		return Shift{}, fmt.Errorf("register: open shift: %w", err)
	}
	return created, nil
}

func (r *txRepo) LockOpenShift(ctx context.Context, id string) (Shift, error) {
	s, err := scanShift(r.conn.QueryRow(ctx, `SELECT `+shiftColumns+` FROM cash_register_shifts
WHERE id = $1 AND status = 'open'
FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return Shift{}, ErrShiftClosed
	}
	if err != nil {
		return Shift{}, fmt.Errorf("register: lock shift: %w", err)
	}
	return s, nil
}

// AddExpected changes the expected drawer cash in one conditional update.
func (r *txRepo) AddExpected(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	var expected decimal.Decimal
	err := r.conn.QueryRow(ctx, `
UPDATE cash_register_shifts
SET expected_cash = expected_cash + $2
WHERE id = $1 AND status = 'open' AND expected_cash + $2 >= 0
RETURNING expected_cash`, id, delta).Scan(&expected)
	if db.IsNoRows(err) {
		return decimal.Zero, ErrInsufficientCash
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("register: update expected cash: %w", err)
	}
	return expected, nil
}

func (r *txRepo) InsertOperation(ctx context.Context, op Operation) (Operation, error) {
	err := r.conn.QueryRow(ctx, `
INSERT INTO cash_drawer_operations (shift_id, type, method, amount, reason, ref_id, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, '')::uuid)
RETURNING id::text, created_at`, op.ShiftID, string(op.Type), op.Method, op.Amount, op.Reason, op.RefID, op.CreatedBy).
		Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		return Operation{}, fmt.Errorf("register: insert operation: %w", err)
	}
	return op, nil
}

func (r *txRepo) CloseShift(ctx context.Context, s Shift) error {
	tag, err := r.conn.Exec(ctx, `
UPDATE cash_register_shifts
SET status = 'closed', counted_cash = $2, variance = $3, variance_class = $4, notes = NULLIF($5, ''),
    closed_at = $6, closed_by = NULLIF($7, '')::uuid
WHERE id = $1 AND status = 'open'`, s.ID, s.CountedCash, s.Variance, s.VarianceClass, s.Notes, s.ClosedAt, s.ClosedBy)
	if err != nil {
		return fmt.Errorf("register: close shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftClosed
	}
	return nil
}
