package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

var (
	// ErrNotFound indicates a missing setting.
	ErrNotFound = fmt.Errorf("settings: %w", httpx.ErrNotFound)
	// ErrInvalidKey rejects malformed keys.
	ErrInvalidKey = fmt.Errorf("settings: invalid key: %w", httpx.ErrValidation)
)

// RepositoryPort is the persistence needed by Service.
type RepositoryPort interface {
	GetSetting(ctx context.Context, key string) (Setting, error)
	ListSettings(ctx context.Context) ([]Setting, error)
	PutSetting(ctx context.Context, key string, value json.RawMessage, actorID string) (Setting, error)
	ListSequences(ctx context.Context) ([]Sequence, error)
	UpsertSequence(ctx context.Context, seq Sequence) (Sequence, error)
}

// Service reads and writes store settings.
type Service struct {
	repo     RepositoryPort
	pool     *pgxpool.Pool
	activity *shared.ActivityLogger
	logger   *slog.Logger
}

// NewService constructs a Service. pool may be nil when sequences are not drawn.
func NewService(repo RepositoryPort, pool *pgxpool.Pool, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pool: pool, activity: activity, logger: logger}
}

// List returns all settings.
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.repo.ListSettings(ctx)
}

// Get returns a raw setting.
func (s *Service) Get(ctx context.Context, key string) (Setting, error) {
	if !validKey(key) {
		return Setting{}, ErrInvalidKey
	}
	return s.repo.GetSetting(ctx, key)
}

// Decode loads key into dst. found is false when the key is unset.
func (s *Service) Decode(ctx context.Context, key string, dst any) (bool, error) {
	setting, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(setting.Value, dst); err != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return true, nil
}

// Put stores a JSON value.
func (s *Service) Put(ctx context.Context, actorID, key string, value json.RawMessage) (Setting, error) {
	if !validKey(key) {
		return Setting{}, ErrInvalidKey
	}
	if !json.Valid(value) {
		return Setting{}, fmt.Errorf("settings: value is not valid JSON: %w", httpx.ErrValidation)
	}
	setting, err := s.repo.PutSetting(ctx, key, value, actorID)
	if err != nil {
		return Setting{}, err
	}
	if s.activity != nil {
		if err := s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: "setting.updated", Entity: "setting", EntityID: key}); err != nil {
			s.logger.Warn("settings: activity log", slog.Any("error", err))
		}
	}
	return setting, nil
}

// Sequences lists number sequences.
func (s *Service) Sequences(ctx context.Context) ([]Sequence, error) {
	return s.repo.ListSequences(ctx)
}

// ConfigureSequence updates prefix and padding of a sequence.
func (s *Service) ConfigureSequence(ctx context.Context, seq Sequence) (Sequence, error) {
	if !validKey(seq.Name) {
		return Sequence{}, ErrInvalidKey
	}
	if seq.Padding < 0 || seq.Padding > 12 {
		return Sequence{}, fmt.Errorf("settings: padding out of range: %w", httpx.ErrValidation)
	}
	return s.repo.UpsertSequence(ctx, seq)
}

// Next draws the next number of a sequence outside any transaction.
func (s *Service) Next(ctx context.Context, name string) (string, error) {
	if s.pool == nil {
		return "", errors.New("settings: no database configured")
	}
	return NextNumber(ctx, s.pool, name)
}
