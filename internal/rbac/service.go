package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

var (
	// ErrNotFound indicates that the requested role does not exist.
	ErrNotFound = fmt.Errorf("rbac: role %w", httpx.ErrNotFound)
	// ErrSystemRole is returned when deleting a built-in role.
	ErrSystemRole = fmt.Errorf("rbac: built-in roles cannot be deleted: %w", httpx.ErrConflict)
	// ErrDuplicateRole is returned when a role name is taken.
	ErrDuplicateRole = fmt.Errorf("rbac: role name already exists: %w", httpx.ErrDuplicate)
	// ErrInvalidRole wraps role validation failures.
	ErrInvalidRole = fmt.Errorf("rbac: invalid role: %w", httpx.ErrValidation)
)

// RoleInput is the editable part of a role.
type RoleInput struct {
	Name        string              `json:"name" validate:"required,max=64"`
	Description string              `json:"description" validate:"max=255"`
	Permissions map[string][]string `json:"permissions" validate:"dive,keys,rbac_resource,endkeys,dive,rbac_action"`
	IsAdmin     bool                `json:"is_admin"`
}

// Service manages roles and assignments and keeps the resolver fresh after
// changes.
type Service struct {
	repo     Repository
	resolver *Resolver
	activity *shared.ActivityLogger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, resolver *Resolver, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, activity: activity, validate: newValidator(), logger: logger}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("rbac_resource", func(fl validator.FieldLevel) bool {
		r := Resource(fl.Field().String())
		return r == AnyResource || r.Valid()
	})
	_ = v.RegisterValidation("rbac_action", func(fl validator.FieldLevel) bool {
		return Action(fl.Field().String()).Valid()
	})
	return v
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID string, in RoleInput) (Role, error) {
	role, err := s.buildRole(in)
	if err != nil {
		return Role{}, err
	}
	created, err := s.repo.InsertRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.created", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// UpdateRole updates an existing role. Built-in roles keep their name.
func (s *Service) UpdateRole(ctx context.Context, actorID, id string, in RoleInput) (Role, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role, err := s.buildRole(in)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem && role.Name != current.Name {
		return Role{}, fmt.Errorf("%w: built-in roles cannot be renamed", ErrInvalidRole)
	}
	role.ID = current.ID
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.invalidateMembers(ctx, id)
	s.record(ctx, actorID, "role.updated", id, map[string]any{"name": updated.Name})
	return updated, nil
}

// DeleteRole removes a role. Built-in roles are refused with ErrSystemRole.
func (s *Service) DeleteRole(ctx context.Context, actorID, id string) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	members, err := s.repo.ListRoleMembers(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	for _, identityID := range members {
		s.resolver.Invalidate(identityID)
	}
	s.record(ctx, actorID, "role.deleted", id, map[string]any{"name": role.Name})
	return nil
}

// AssignRole grants a role to an identity.
func (s *Service) AssignRole(ctx context.Context, actorID, identityID, roleID string) error {
	if identityID == "" {
		return fmt.Errorf("%w: identity required", ErrInvalidRole)
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.InsertAssignment(ctx, identityID, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(identityID)
	s.record(ctx, actorID, "role.assigned", identityID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRole revokes a role from an identity.
func (s *Service) RemoveRole(ctx context.Context, actorID, identityID, roleID string) error {
	if err := s.repo.DeleteAssignment(ctx, identityID, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(identityID)
	s.record(ctx, actorID, "role.removed", identityID, map[string]any{"role_id": roleID})
	return nil
}

// SetIdentityRoles replaces every role of an identity.
func (s *Service) SetIdentityRoles(ctx context.Context, actorID, identityID string, roleIDs []string) error {
	if identityID == "" {
		return fmt.Errorf("%w: identity required", ErrInvalidRole)
	}
	unique := make([]string, 0, len(roleIDs))
	seen := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		if _, err := s.repo.GetRole(ctx, id); err != nil {
			return err
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if err := s.repo.ReplaceAssignments(ctx, identityID, unique); err != nil {
		return err
	}
	s.resolver.Invalidate(identityID)
	s.record(ctx, actorID, "roles.replaced", identityID, map[string]any{"role_ids": unique})
	return nil
}

// SeedBuiltinRoles creates any missing built-in role and returns the names
// it created. Existing roles are left untouched.
func (s *Service) SeedBuiltinRoles(ctx context.Context) ([]string, error) {
	var created []string
	for _, role := range BuiltinRoles() {
		_, err := s.repo.GetRoleByName(ctx, role.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, err
		}
		if _, err := s.repo.InsertRole(ctx, role); err != nil {
			return created, fmt.Errorf("seed %s: %w", role.Name, err)
		}
		created = append(created, role.Name)
	}
	if len(created) > 0 {
		s.logger.Info("rbac: seeded built-in roles", slog.Any("roles", created))
	}
	return created, nil
}

func (s *Service) buildRole(in RoleInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return Role{}, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	perms := make(PermissionMap, len(in.Permissions))
	for resource, actions := range in.Permissions {
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			set[Action(a)] = struct{}{}
		}
		perms[Resource(resource)] = sortedActions(set)
	}
	return Role{Name: in.Name, Description: in.Description, Permissions: perms, IsAdmin: in.IsAdmin}, nil
}

func (s *Service) invalidateMembers(ctx context.Context, roleID string) {
	members, err := s.repo.ListRoleMembers(ctx, roleID)
	if err != nil {
		s.logger.Warn("rbac: list role members", slog.String("role_id", roleID), slog.Any("error", err))
		return
	}
	for _, identityID := range members {
		s.resolver.Invalidate(identityID)
	}
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "role", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("rbac: activity log", slog.String("action", action), slog.Any("error", err))
	}
}
