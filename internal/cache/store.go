// ABOUTME: Freshness-bounded per-identity cache of merged workout feeds.
// ABOUTME: A memory front over an optional persistent backend; stale entries are still served.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/observability"
)

// ErrNotFound is returned by backends for a missing key.
var ErrNotFound = errors.New("cache entry not found")

// DefaultTTL is the freshness window of a cached feed.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "feed:"

// Backend persists encoded entries.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Entry is one cached feed.
type Entry struct {
	Identity       string
	Records        []models.WorkoutRecord
	FetchedAt      time.Time
	TTL            time.Duration
	DuplicateCount int
}

// Fresh reports whether the entry is within its TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) <= e.TTL
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	if age := now.Sub(e.FetchedAt); age > 0 {
		return age
	}
	return 0
}

// Store is the cache. It is safe for concurrent use.
//
// writeMu orders every change that touches both the backend and memory,
// including filling memory from the backend, so an Invalidate or Set is
// never undone by a slower load of an older entry.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	memory  map[string]Entry
	backend Backend
	now     func() time.Time
	logger  *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBackend persists entries to b in addition to memory.
func WithBackend(b Backend) Option {
	return func(s *Store) {
		s.backend = b
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithPrefix("cache")
		}
	}
}

// New creates a store. Without a backend it is memory only.
func New(opts ...Option) *Store {
	s := &Store{
		memory: make(map[string]Entry),
		now:    time.Now,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the entry for identity. ok is false on a miss; fresh is false
// once the TTL has elapsed, but the stale entry is still returned.
func (s *Store) Get(identity string) (entry Entry, fresh bool, ok bool) {
	s.mu.RLock()
	entry, ok = s.memory[identity]
	s.mu.RUnlock()

	if !ok && s.backend != nil {
		entry, ok = s.fill(identity)
	}
	if !ok {
		return Entry{}, false, false
	}
	entry.Records = append([]models.WorkoutRecord(nil), entry.Records...)
	return entry, entry.Fresh(s.now()), true
}

// fill loads identity from the backend into memory unless a writer got
// there first.
func (s *Store) fill(identity string) (Entry, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	entry, ok := s.memory[identity]
	s.mu.RUnlock()
	if ok {
		return entry, true
	}

	entry, ok = s.load(identity)
	if ok {
		s.mu.Lock()
		s.memory[identity] = entry
		s.mu.Unlock()
	}
	return entry, ok
}

func (s *Store) load(identity string) (Entry, bool) {
	data, err := s.backend.Get(keyPrefix + identity)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("cache read failed", "identity", identity, "err", err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := decodeGob(data, &entry); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "identity", identity, "err", err)
		return Entry{}, false
	}
	return entry, true
}

// Set replaces the entry for identity. A backend failure is logged and
// returned; the previous entry is left in place.
func (s *Store) Set(identity string, records []models.WorkoutRecord, ttl time.Duration, duplicates int) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := Entry{
		Identity:       identity,
		Records:        append([]models.WorkoutRecord(nil), records...),
		FetchedAt:      s.now(),
		TTL:            ttl,
		DuplicateCount: duplicates,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.backend != nil {
		data, err := encodeGob(entry)
		if err == nil {
			err = s.backend.Put(keyPrefix+identity, data)
		}
		if err != nil {
			observability.RecordCacheWriteError()
			s.logger.Warn("cache write failed", "identity", identity, "err", err)
			return fmt.Errorf("write cache entry: %w", err)
		}
	}

	s.mu.Lock()
	s.memory[identity] = entry
	s.mu.Unlock()
	return nil
}

// Invalidate removes the entry for identity.
func (s *Store) Invalidate(identity string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.memory, identity)
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Delete(keyPrefix + identity); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("cache invalidate failed", "identity", identity, "err", err)
			return fmt.Errorf("delete cache entry: %w", err)
		}
	}
	return nil
}

// Identities lists every cached identity, sorted.
func (s *Store) Identities() ([]string, error) {
	set := map[string]bool{}
	s.mu.RLock()
	for id := range s.memory {
		set[id] = true
	}
	s.mu.RUnlock()

	if s.backend != nil {
		keys, err := s.backend.Keys(keyPrefix)
		if err != nil {
			return nil, fmt.Errorf("list cache keys: %w", err)
		}
		for _, k := range keys {
			set[strings.TrimPrefix(k, keyPrefix)] = true
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// NextPageCursor returns the earliest start time in records, the until
// bound for the next older page. It is zero for an empty payload.
func NextPageCursor(records []models.WorkoutRecord) time.Time {
	var cursor time.Time
	for _, r := range records {
		if cursor.IsZero() || r.StartTime.Before(cursor) {
			cursor = r.StartTime
		}
	}
	return cursor
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
