// Package store keeps the client's local state (cookies and cached API
// responses) in a buntdb file so a session survives between invocations.
package store

import (
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"
)

const (
	cookiePrefix = "cookie:"
	cachePrefix  = "cache:"
)

// Store owns the buntdb handle shared by the cookie jar and the cache
type Store struct {
	db *buntdb.DB
}

// Open opens (or creates) the state file at path. ":memory:" keeps
// everything in memory.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// deletePrefix removes every key starting with prefix. Keys are collected
// first since buntdb forbids mutation while iterating.
func (s *Store) deletePrefix(prefix string) (int, error) {
	var removed int
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		err := tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
