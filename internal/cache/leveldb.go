// ABOUTME: LevelDB-backed persistent cache backend.
// ABOUTME: Alternative on-disk store selected with cache.backend: leveldb.
package cache

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend stores entries in a leveldb database.
type LevelDBBackend struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a leveldb database at path.
func OpenLevelDB(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBBackend{db: db}, nil
}

// OpenLevelDBInMemory opens a leveldb database on memory storage.
func OpenLevelDBInMemory() (*LevelDBBackend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBBackend{db: db}, nil
}

// Get returns the value for key or ErrNotFound.
func (l *LevelDBBackend) Get(key string) ([]byte, error) {
	value, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key.
func (l *LevelDBBackend) Put(key string, value []byte) error {
	if err := l.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (l *LevelDBBackend) Delete(key string) error {
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys starting with prefix.
func (l *LevelDBBackend) Keys(prefix string) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb keys: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (l *LevelDBBackend) Close() error {
	return l.db.Close()
}
