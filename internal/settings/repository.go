package settings

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// Repository persists settings and sequences.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSetting returns the raw value of key.
func (r *Repository) GetSetting(ctx context.Context, key string) (Setting, error) {
	var s Setting
	err := r.pool.QueryRow(ctx, `SELECT key, value, COALESCE(updated_by::text, ''), updated_at FROM store_settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Setting{}, ErrNotFound
		}
		return Setting{}, err
	}
	return s, nil
}

// ListSettings returns every setting.
func (r *Repository) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, COALESCE(updated_by::text, ''), updated_at FROM store_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PutSetting upserts a value.
func (r *Repository) PutSetting(ctx context.Context, key string, value json.RawMessage, actorID string) (Setting, error) {
	var s Setting
	err := r.pool.QueryRow(ctx, `INSERT INTO store_settings (key, value, updated_by, updated_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
RETURNING key, value, COALESCE(updated_by::text, ''), updated_at`, key, value, actorID).
		Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt)
	return s, err
}

// ListSequences returns every sequence.
func (r *Repository) ListSequences(ctx context.Context) ([]Sequence, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, prefix, next_value, padding, updated_at FROM number_sequences ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sequence
	for rows.Next() {
		var s Sequence
		if err := rows.Scan(&s.Name, &s.Prefix, &s.NextValue, &s.Padding, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSequence sets prefix and padding; next_value only moves forward.
func (r *Repository) UpsertSequence(ctx context.Context, seq Sequence) (Sequence, error) {
	var out Sequence
	err := r.pool.QueryRow(ctx, `INSERT INTO number_sequences (name, prefix, next_value, padding, updated_at)
VALUES ($1, $2, GREATEST($3, 1), $4, NOW())
ON CONFLICT (name) DO UPDATE SET prefix = EXCLUDED.prefix, padding = EXCLUDED.padding,
next_value = GREATEST(number_sequences.next_value, EXCLUDED.next_value), updated_at = NOW()
RETURNING name, prefix, next_value, padding, updated_at`, seq.Name, seq.Prefix, seq.NextValue, seq.Padding).
		Scan(&out.Name, &out.Prefix, &out.NextValue, &out.Padding, &out.UpdatedAt)
	return out, err
}

// NextNumber atomically takes the next value of a sequence and formats it.
// It runs on q so callers can draw numbers inside their own transaction; a
// rolled back transaction returns the number to the pool.
func NextNumber(ctx context.Context, q db.DBTX, name string) (string, error) {
	var seq Sequence
	var taken int64
	err := q.QueryRow(ctx, `INSERT INTO number_sequences (name, prefix, next_value, padding, updated_at)
VALUES ($1, $2, 2, 6, NOW())
ON CONFLICT (name) DO UPDATE SET next_value = number_sequences.next_value + 1, updated_at = NOW()
RETURNING name, prefix, next_value - 1, padding`, name, DefaultPrefixes[name]).
		Scan(&seq.Name, &seq.Prefix, &taken, &seq.Padding)
	if err != nil {
		return "", err
	}
	return seq.Format(taken), nil
}
