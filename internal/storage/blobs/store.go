package blobs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
)

// Error kinds surfaced by the store. Callers branch on these with
// errors.Is.
var (
	ErrNotFound = errors.New("blob not found")
	ErrReadOnly = errors.New("blob store is read-only")
	ErrLocked   = errors.New("blob store is locked")
)

// namespace markers live under their own prefix so they never collide
// with blob paths.
const namespacePrefix = "!ns!"

// Store keeps blob bytes in an in-memory Badger database. Contents do
// not survive a process restart. Each value carries an 8-byte write
// timestamp header so Sweep can expire old blobs.
type Store struct {
	db     *badger.DB
	logger arbor.ILogger
}

// New opens the in-memory database.
func New(logger arbor.ILogger) (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", mapBadgerError(err))
	}

	logger.Info().Msg("In-memory blob store initialized")
	return &Store{db: db, logger: logger}, nil
}

// Exists reports whether a blob is present at path.
func (s *Store) Exists(path string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(path))
		return err
	})
	return err == nil
}

// MakeDirs marks a namespace as present. The store is flat, so this is
// a marker key rather than a directory tree.
func (s *Store) MakeDirs(namespace string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(namespacePrefix+namespace), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", namespace, mapBadgerError(err))
	}
	return nil
}

// Write stores data at path, replacing any existing blob.
func (s *Store) Write(path string, data []byte) error {
	value := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(value[:8], uint64(time.Now().UnixNano()))
	copy(value[8:], data)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write blob %s: %w", path, mapBadgerError(err))
	}
	return nil
}

// Read returns the bytes stored at path.
func (s *Store) Read(path string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			if len(value) < 8 {
				return fmt.Errorf("corrupt blob value at %s", path)
			}
			data = append([]byte(nil), value[8:]...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, mapBadgerError(err))
	}
	return data, nil
}

// Remove deletes the blob at path. Removing an absent path is an
// ErrNotFound.
func (s *Store) Remove(path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(path)); err != nil {
			return err
		}
		return txn.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("failed to remove blob %s: %w", path, mapBadgerError(err))
	}
	return nil
}

// Sweep removes blobs written more than maxAge ago and returns their
// paths. Namespace markers are never swept.
func (s *Store) Sweep(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()

	var expired []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if len(key) >= len(namespacePrefix) && key[:len(namespacePrefix)] == namespacePrefix {
				continue
			}
			err := item.Value(func(value []byte) error {
				if len(value) >= 8 && int64(binary.BigEndian.Uint64(value[:8])) < cutoff {
					expired = append(expired, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan blobs: %w", mapBadgerError(err))
	}

	for _, path := range expired {
		if err := s.Remove(path); err != nil && !errors.Is(err, ErrNotFound) {
			return expired, err
		}
	}

	if len(expired) > 0 {
		s.logger.Debug().Int("count", len(expired)).Msg("Expired blobs removed")
	}
	return expired, nil
}

// Close shuts the database down. All blobs are discarded.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func mapBadgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return ErrReadOnly
	case errors.Is(err, badger.ErrConflict):
		return ErrLocked
	default:
		return err
	}
}
