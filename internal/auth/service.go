package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aurum-erp/aurum/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo        Repository
	tokens      *TokenIssuer
	invalidator Invalidator
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, invalidator Invalidator) *Service {
	return &Service{repo: repo, tokens: tokens, invalidator: invalidator}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	s.invalidate(user.ID)
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record and drops the identity's resolved access.
func (s *Service) RemoveSession(ctx context.Context, id, userID string) error {
	s.invalidate(userID)
	return s.repo.DeleteSession(ctx, id)
}

// IssueToken returns a bearer token for the user.
func (s *Service) IssueToken(user *User) (string, time.Time, error) {
	return s.tokens.Issue(user)
}

// RefreshToken exchanges a valid token for a new one. When previousIdentity
// is set and differs from the token subject, both identities are invalidated.
func (s *Service) RefreshToken(ctx context.Context, raw, previousIdentity string) (*User, string, time.Time, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil || !user.IsActive {
		return nil, "", time.Time{}, ErrInvalidToken
	}
	if previousIdentity != "" && previousIdentity != user.ID {
		s.invalidate(previousIdentity)
		s.invalidate(user.ID)
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, expires, nil
}

// VerifyToken returns the identity named by a bearer token.
func (s *Service) VerifyToken(raw string) (string, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// HashPassword hashes a plain password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) invalidate(identityID string) {
	if s.invalidator != nil && identityID != "" {
		s.invalidator.Invalidate(identityID)
	}
}
