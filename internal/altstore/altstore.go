// Package altstore implements the "alternate engine adapter" described in
// spec.md §4.3: a thin wrapper exposing the storage.Storage contract over
// an external embedded ordered key-value library, so the server can be
// parameterized over storage engines at startup. It wraps
// github.com/dgraph-io/badger/v2, the embedded LSM-tree library retrieved
// alongside this spec's example pack (AlexanderChiuluvB-badger).
package altstore

import (
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v2"

	"github.com/nikosl/smoldb/internal/storeerr"
)

// Store adapts a *badger.DB to the storage.Storage interface. Unlike
// bitcask.Engine, a Store is not cheaply cloneable: badger.DB is already
// safe for concurrent use from many goroutines, so every caller shares the
// same *Store value directly.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	slog.Info("altstore: opened", "dir", dir)
	return &Store{db: db}, nil
}

// Get returns the current value for key, or ("", false) if absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get %q: %w", key, err)
	}
	return string(value), true, nil
}

// Set stores value under key, overwriting any previous value.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key, returning storeerr.ErrKeyNotFound if it is absent.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err == badger.ErrKeyNotFound {
		return storeerr.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("badger remove %q: %w", key, err)
	}
	return nil
}

// ListKeys iterates the underlying tree and returns every key.
func (s *Store) ListKeys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list keys: %w", err)
	}
	return keys, nil
}

// Compact is a no-op: Badger reclaims space from its own LSM compaction
// and value-log garbage collection in the background, so there is nothing
// for the caller to trigger synchronously the way bitcask.Engine.Compact
// must be (see spec.md §4.3).
func (s *Store) Compact() error {
	return nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}
