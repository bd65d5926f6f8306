package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// Repository persists roles and assignments.
type Repository interface {
	Source
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	InsertAssignment(ctx context.Context, identityID, roleID string) error
	DeleteAssignment(ctx context.Context, identityID, roleID string) error
	ReplaceAssignments(ctx context.Context, identityID string, roleIDs []string) error
	ListRoleMembers(ctx context.Context, roleID string) ([]string, error)
}

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id::text, name, COALESCE(description, ''), permissions, is_system, is_admin, created_at, updated_at`

// GetIdentity loads the flags of a user.
func (r *PGRepository) GetIdentity(ctx context.Context, identityID string) (Identity, error) {
	var id Identity
	err := r.pool.QueryRow(ctx, `SELECT id::text, is_active, is_superuser FROM users WHERE id::text = $1`, identityID).
		Scan(&id.ID, &id.IsActive, &id.IsSuperuser)
	if err != nil {
		if db.IsNoRows(err) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return id, nil
}

// ListAssignments returns the role assignments of an identity.
func (r *PGRepository) ListAssignments(ctx context.Context, identityID string) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT identity_id::text, role_id::text, created_at FROM user_roles WHERE identity_id::text = $1`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.IdentityID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetRolesByIDs loads the given roles.
func (r *PGRepository) GetRolesByIDs(ctx context.Context, ids []string) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id string) (Role, error) {
	return r.getRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE id::text = $1`, id)
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return r.getRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
}

// InsertRole creates a role.
func (r *PGRepository) InsertRole(ctx context.Context, role Role) (Role, error) {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	created, err := r.getRole(ctx, `INSERT INTO roles (name, description, permissions, is_system, is_admin)
VALUES ($1, NULLIF($2, ''), $3, $4, $5) RETURNING `+roleColumns,
		role.Name, role.Description, perms, role.IsSystem, role.IsAdmin)
	if err != nil && db.IsUniqueViolation(err) {
		return Role{}, ErrDuplicateRole
	}
	return created, err
}

// UpdateRole replaces the editable attributes of a role.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	updated, err := r.getRole(ctx, `UPDATE roles SET name = $2, description = NULLIF($3, ''), permissions = $4, is_admin = $5, updated_at = NOW()
WHERE id::text = $1 RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, perms, role.IsAdmin)
	if err != nil && db.IsUniqueViolation(err) {
		return Role{}, ErrDuplicateRole
	}
	return updated, err
}

// DeleteRole removes a role and its assignments.
func (r *PGRepository) DeleteRole(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id::text = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id::text = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// InsertAssignment links identity and role. Repeated calls are no-ops.
func (r *PGRepository) InsertAssignment(ctx context.Context, identityID, roleID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (identity_id, role_id) VALUES ($1::uuid, $2::uuid) ON CONFLICT DO NOTHING`, identityID, roleID)
	return err
}

// DeleteAssignment unlinks identity and role.
func (r *PGRepository) DeleteAssignment(ctx context.Context, identityID, roleID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE identity_id::text = $1 AND role_id::text = $2`, identityID, roleID)
	return err
}

// ReplaceAssignments sets the identity's roles to exactly roleIDs.
func (r *PGRepository) ReplaceAssignments(ctx context.Context, identityID string, roleIDs []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE identity_id::text = $1`, identityID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (identity_id, role_id) VALUES ($1::uuid, $2::uuid) ON CONFLICT DO NOTHING`, identityID, roleID); err != nil {
				return fmt.Errorf("assign %s: %w", roleID, err)
			}
		}
		return nil
	})
}

// ListRoleMembers returns identities holding the role.
func (r *PGRepository) ListRoleMembers(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT identity_id::text FROM user_roles WHERE role_id::text = $1`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGRepository) getRole(ctx context.Context, query string, args ...any) (Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Role{}, err
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return Role{}, err
	}
	if len(roles) == 0 {
		return Role{}, ErrNotFound
	}
	return roles[0], nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var (
			role  Role
			perms []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.IsSystem, &role.IsAdmin, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Permissions = PermissionMap{}
		if len(perms) > 0 {
			if err := json.Unmarshal(perms, &role.Permissions); err != nil {
				return nil, fmt.Errorf("rbac: decode permissions of %s: %w", role.Name, err)
			}
		}
		out = append(out, role)
	}
	return out, rows.Err()
}
