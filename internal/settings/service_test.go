package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	values    map[string]Setting
	sequences map[string]Sequence
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{values: map[string]Setting{}, sequences: map[string]Sequence{}}
}

func (m *memoryRepo) GetSetting(_ context.Context, key string) (Setting, error) {
	s, ok := m.values[key]
	if !ok {
		return Setting{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListSettings(_ context.Context) ([]Setting, error) {
	out := make([]Setting, 0, len(m.values))
	for _, v := range m.values {
		out = append(out, v)
	}
	return out, nil
}

func (m *memoryRepo) PutSetting(_ context.Context, key string, value json.RawMessage, actor string) (Setting, error) {
	s := Setting{Key: key, Value: value, UpdatedBy: actor, UpdatedAt: time.Now()}
	m.values[key] = s
	return s, nil
}

func (m *memoryRepo) ListSequences(_ context.Context) ([]Sequence, error) {
	out := make([]Sequence, 0, len(m.sequences))
	for _, v := range m.sequences {
		out = append(out, v)
	}
	return out, nil
}

func (m *memoryRepo) UpsertSequence(_ context.Context, seq Sequence) (Sequence, error) {
	m.sequences[seq.Name] = seq
	return seq, nil
}

func TestPutAndDecode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	var profile StoreProfile
	found, err := svc.Decode(ctx, KeyStoreProfile, &profile)
	require.NoError(t, err)
	require.False(t, found)

	_, err = svc.Put(ctx, "admin", KeyStoreProfile, json.RawMessage(`{"name":"Aurum","currency":"INR"}`))
	require.NoError(t, err)

	found, err = svc.Decode(ctx, KeyStoreProfile, &profile)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Aurum", profile.Name)
}

func TestPutRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Put(ctx, "admin", "Bad Key", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = svc.Put(ctx, "admin", "store.profile", json.RawMessage(`{broken`))
	require.Error(t, err)
}

func TestSequenceFormat(t *testing.T) {
	require.Equal(t, "INV-000042", Sequence{Prefix: "INV-"}.Format(42))
	require.Equal(t, "PO-0007", Sequence{Prefix: "PO-", Padding: 4}.Format(7))
}
