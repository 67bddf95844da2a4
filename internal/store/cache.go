package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
)

// Cache stores decoded API responses as JSON with a TTL
type Cache struct {
	store *Store
}

// Cache returns the response cache backed by this store
func (s *Store) Cache() *Cache {
	return &Cache{store: s}
}

// Get decodes the cached value for key into v. It reports false on a miss
// or an expired entry.
func (c *Cache) Get(key string, v interface{}) (bool, error) {
	var raw string
	err := c.store.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(cachePrefix + key)
		if err != nil {
			return err
		}
		raw = val
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key. A non-positive ttl disables caching entirely.
func (c *Cache) Set(key string, v interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return c.store.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(cachePrefix+key, string(data), &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
}

// InvalidatePrefix drops every entry whose key starts with prefix
func (c *Cache) InvalidatePrefix(prefix string) error {
	_, err := c.store.deletePrefix(cachePrefix + prefix)
	return err
}

// Clear drops the whole cache
func (c *Cache) Clear() error {
	_, err := c.store.deletePrefix(cachePrefix)
	return err
}
