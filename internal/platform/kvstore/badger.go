// Package kvstore wraps an embedded badger database used as the local
// fallback copy of reference data.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrMissing is returned when the key has never been written.
var ErrMissing = errors.New("kvstore: key missing")

// Store is a JSON document store over badger.
type Store struct {
	db *badger.DB
}

// Entry carries the stored value and when it was written.
type entry struct {
	Value   json.RawMessage `json:"value"`
	SavedAt time.Time       `json:"saved_at"`
}

// Open opens (or creates) the store in dir. An empty dir opens an in-memory
// store, used by tests.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Put stores v under key.
func (s *Store) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry{Value: raw, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get decodes the value stored under key into dst and returns when it was
// saved.
func (s *Store) Get(key string, dst any) (time.Time, error) {
	var e entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrMissing
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return time.Time{}, fmt.Errorf("kvstore: decode %s: %w", key, err)
	}
	return e.SavedAt, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
