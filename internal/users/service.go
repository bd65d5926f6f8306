package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = fmt.Errorf("users: user %w", httpx.ErrNotFound)
	// ErrEmailTaken indicates a duplicate email.
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", httpx.ErrDuplicate)
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = fmt.Errorf("users: %w", httpx.ErrValidation)
	// ErrSelfDeactivation prevents locking oneself out.
	ErrSelfDeactivation = fmt.Errorf("users: cannot deactivate your own account: %w", httpx.ErrConflict)
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, in CreateInput, passwordHash string) (string, error)
	UpdateUser(ctx context.Context, id string, in UpdateInput) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// RoleAssigner replaces the roles of an identity.
type RoleAssigner interface {
	SetIdentityRoles(ctx context.Context, actorID, identityID string, roleIDs []string) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	roles    RoleAssigner
	activity *shared.ActivityLogger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleAssigner, activity *shared.ActivityLogger) *Service {
	return &Service{repo: repo, roles: roles, activity: activity, validate: validator.New()}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	return s.repo.ListUsers(ctx, filters)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a user and assigns the requested roles.
func (s *Service) CreateUser(ctx context.Context, actorID string, in CreateInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	id, err := s.repo.InsertUser(ctx, in, string(hash))
	if err != nil {
		return User{}, err
	}
	if len(in.RoleIDs) > 0 && s.roles != nil {
		if err := s.roles.SetIdentityRoles(ctx, actorID, id, in.RoleIDs); err != nil {
			return User{}, err
		}
	}
	s.record(ctx, actorID, "user.created", id, map[string]any{"email": in.Email})
	return s.repo.GetUser(ctx, id)
}

// UpdateUser applies a partial update. Deactivation is soft and keeps history.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, in UpdateInput) (User, error) {
	if err := s.validate.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.IsActive != nil && !*in.IsActive && actorID == id {
		return User{}, ErrSelfDeactivation
	}
	if err := s.repo.UpdateUser(ctx, id, in); err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.updated", id, nil)
	return s.repo.GetUser(ctx, id)
}

// DeactivateUser is the delete operation for accounts.
func (s *Service) DeactivateUser(ctx context.Context, actorID, id string) error {
	inactive := false
	_, err := s.UpdateUser(ctx, actorID, id, UpdateInput{IsActive: &inactive})
	return err
}

// SetPassword replaces a user's password.
func (s *Service) SetPassword(ctx context.Context, actorID, id, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, id, string(hash)); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.password_reset", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: "user", EntityID: id, Meta: meta})
}

// IsNotFound reports whether err is a missing user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
