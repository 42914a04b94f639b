// ABOUTME: Charm KV cache backend, synced to a Charm Cloud account.
// ABOUTME: Selected with cache.backend: charm so cached feeds follow the user between machines.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
)

// DefaultCharmHost is the Charm server used when CHARM_HOST is unset.
const DefaultCharmHost = "charm.2389.dev"

const charmDBName = "workoutfeed"

// charmStore is the part of *kv.KV the backend uses.
type charmStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Keys() ([][]byte, error)
	Sync() error
	IsReadOnly() bool
	Close() error
}

// CharmBackend stores entries in a Charm KV database.
type CharmBackend struct {
	mu       sync.RWMutex
	kv       charmStore
	autoSync bool
}

// OpenCharm opens the workoutfeed Charm KV database. host and dataDir set
// CHARM_HOST and CHARM_DATA_DIR when those are not already in the
// environment. If another process holds the lock the database opens
// read-only and writes fail.
func OpenCharm(host, dataDir string) (*CharmBackend, error) {
	if host == "" {
		host = DefaultCharmHost
	}
	if err := setenvDefault("CHARM_HOST", host); err != nil {
		return nil, err
	}
	if dataDir != "" {
		if err := setenvDefault("CHARM_DATA_DIR", dataDir); err != nil {
			return nil, err
		}
	}

	db, err := kv.OpenWithDefaultsFallback(charmDBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}
	b := newCharmBackend(db)
	if !db.IsReadOnly() {
		_ = db.Sync()
	}
	return b, nil
}

func newCharmBackend(store charmStore) *CharmBackend {
	return &CharmBackend{kv: store, autoSync: true}
}

func setenvDefault(key, value string) error {
	if _, ok := os.LookupEnv(key); ok {
		return nil
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetAutoSync enables or disables syncing after each write.
func (c *CharmBackend) SetAutoSync(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoSync = enabled
}

// Get returns the value for key or ErrNotFound.
func (c *CharmBackend) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, err := c.kv.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("charm get %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key.
func (c *CharmBackend) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return errors.New("cannot write: charm database is locked by another process")
	}
	if err := c.kv.Set([]byte(key), value); err != nil {
		return fmt.Errorf("charm set %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// Delete removes key.
func (c *CharmBackend) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return errors.New("cannot write: charm database is locked by another process")
	}
	if err := c.kv.Delete([]byte(key)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("charm delete %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// Keys lists keys starting with prefix.
func (c *CharmBackend) Keys(prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all, err := c.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("charm keys: %w", err)
	}
	p := []byte(prefix)
	var keys []string
	for _, k := range all {
		if bytes.HasPrefix(k, p) {
			keys = append(keys, string(k))
		}
	}
	return keys, nil
}

// Close closes the database.
func (c *CharmBackend) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Close()
}

func (c *CharmBackend) syncIfEnabled() {
	if c.autoSync && !c.kv.IsReadOnly() {
		_ = c.kv.Sync()
	}
}
