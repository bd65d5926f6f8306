package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/settings"
)

// Repository persists customers and their interactions.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (*Customer, error)
	Update(ctx context.Context, id string, updates map[string]any) error
	NextCode(ctx context.Context) (string, error)
	AddInteraction(ctx context.Context, in Interaction) (*Interaction, error)
	ListInteractions(ctx context.Context, customerID string, limit int) ([]Interaction, error)
	DueFollowUps(ctx context.Context, limit int) ([]Interaction, error)
}

// updatable lists the columns a partial update may touch, in statement order.
var updatable = []string{"name", "phone", "email", "address", "city", "tax_id", "birthday", "anniversary", "notes", "is_active"}

const customerColumns = `id::text, code, name, phone, email, address, city, tax_id, birthday, anniversary, notes,
is_active, COALESCE(created_by::text, ''), created_at, updated_at`

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Email, &c.Address, &c.City, &c.TaxID, &c.Birthday, &c.Anniversary,
		&c.Notes, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone))
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var conditions []string
	var args []any

	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)",
			len(args), len(args), len(args), len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("customers: count: %w", err)
	}

	args = append(args, req.Limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY name, code LIMIT $%d OFFSET $%d`,
		customerColumns, whereClause, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, *c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	created, err := scanCustomer(r.db.QueryRow(ctx, `
INSERT INTO customers (code, name, phone, email, address, city, tax_id, birthday, anniversary, notes, is_active, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NULLIF($11, '')::uuid)
RETURNING `+customerColumns,
		c.Code, c.Name, c.Phone, c.Email, c.Address, c.City, c.TaxID, c.Birthday, c.Anniversary, c.Notes, c.CreatedBy))
	if db.IsUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	return created, err
}

func (r *repository) Update(ctx context.Context, id string, updates map[string]any) error {
	query := "UPDATE customers SET updated_at = NOW()"
	var args []any
	for _, col := range updatable {
		v, ok := updates[col]
		if !ok {
			continue
		}
		args = append(args, v)
		query += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(" WHERE id = $%d", len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("customers: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextCode draws the next customer code from the shared number sequences.
func (r *repository) NextCode(ctx context.Context) (string, error) {
	code, err := settings.NextNumber(ctx, r.db, settings.SequenceCustomer)
	if err != nil {
		return "", fmt.Errorf("customers: next code: %w", err)
	}
	return code, nil
}

func (r *repository) AddInteraction(ctx context.Context, in Interaction) (*Interaction, error) {
	err := r.db.QueryRow(ctx, `
INSERT INTO customer_interactions (customer_id, type, summary, follow_up_at, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid)
RETURNING id::text, created_at`, in.CustomerID, string(in.Type), in.Summary, in.FollowUpAt, in.CreatedBy).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("customers: add interaction: %w", err)
	}
	return &in, nil
}

func (r *repository) ListInteractions(ctx context.Context, customerID string, limit int) ([]Interaction, error) {
	return r.interactions(ctx, `WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
}

func (r *repository) DueFollowUps(ctx context.Context, limit int) ([]Interaction, error) {
	return r.interactions(ctx, `WHERE follow_up_at IS NOT NULL AND follow_up_at <= NOW() ORDER BY follow_up_at LIMIT $1`, limit)
}

func (r *repository) interactions(ctx context.Context, tail string, args ...any) ([]Interaction, error) {
	rows, err := r.db.Query(ctx, `
SELECT id::text, customer_id::text, type, summary, follow_up_at, COALESCE(created_by::text, ''), created_at
FROM customer_interactions `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("customers: interactions: %w", err)
	}
	defer rows.Close()
	var out []Interaction
	for rows.Next() {
		var in Interaction
		var typ string
		if err := rows.Scan(&in.ID, &in.CustomerID, &typ, &in.Summary, &in.FollowUpAt, &in.CreatedBy, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Type = InteractionType(typ)
		out = append(out, in)
	}
	return out, rows.Err()
}
