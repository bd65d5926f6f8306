package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userSelect = `SELECT u.id::text, u.email, u.name, COALESCE(u.phone, ''), u.is_active, u.is_superuser,
COALESCE(array_agg(ur.role_id::text) FILTER (WHERE ur.role_id IS NOT NULL), '{}'), u.created_at, u.updated_at
FROM users u LEFT JOIN user_roles ur ON ur.identity_id = u.id`

// ListUsers returns users matching filters and the total count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+strings.ToLower(filters.Search)+"%")
		where = append(where, fmt.Sprintf("(lower(u.email) LIKE $%d OR lower(u.name) LIKE $%d)", len(args), len(args)))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where = append(where, fmt.Sprintf("u.is_active = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, userSelect+` WHERE `+cond+fmt.Sprintf(` GROUP BY u.id ORDER BY u.name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id::text = $1 GROUP BY u.id`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// InsertUser creates a user with a password hash.
func (r *Repository) InsertUser(ctx context.Context, in CreateInput, passwordHash string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, phone, password_hash, is_active)
VALUES (lower($1), $2, NULLIF($3, ''), $4, TRUE) RETURNING id::text`, in.Email, in.Name, in.Phone, passwordHash).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return id, nil
}

// UpdateUser applies a partial update.
func (r *Repository) UpdateUser(ctx context.Context, id string, in UpdateInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET
name = COALESCE($2, name), phone = COALESCE($3, phone), is_active = COALESCE($4, is_active), updated_at = NOW()
WHERE id::text = $1`, id, in.Name, in.Phone, in.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPasswordHash replaces the stored hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id::text = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.IsActive, &u.IsSuperuser, &u.RoleIDs, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
