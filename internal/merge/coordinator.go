// ABOUTME: Merge coordinator: cache check, parallel local+network fetch, dedup, cache write.
// ABOUTME: Stale hits are served immediately while a detached background refresh repairs the entry.
package merge

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/workoutfeed/internal/cache"
	"github.com/harperreed/workoutfeed/internal/dedup"
	"github.com/harperreed/workoutfeed/internal/discovery"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/observability"
	"github.com/harperreed/workoutfeed/internal/parser"
	"github.com/harperreed/workoutfeed/internal/relay"
	"golang.org/x/sync/singleflight"
)

// Defaults for background refreshes.
const (
	DefaultRefreshTimeout = 60 * time.Second
	DefaultMaxRefreshes   = 4
)

// LocalSource returns the workouts recorded on this device. Records carry
// origin local and SI units.
type LocalSource interface {
	FetchLocalWorkouts(ctx context.Context, identity string) ([]models.WorkoutRecord, error)
}

// Discoverer runs relay discovery. *discovery.Engine implements it.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) discovery.Result
}

// Coordinator serves the merged workout feed.
type Coordinator struct {
	cache          *cache.Store
	discovery      Discoverer
	local          LocalSource
	ttl            time.Duration
	refreshTimeout time.Duration
	aborted        func() bool
	logger         *log.Logger

	bgSem     chan struct{}
	refreshes singleflight.Group

	// mu guards closed; wg.Add only happens under mu while open.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL sets the freshness window of written cache entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRefreshTimeout bounds one background refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithMaxRefreshes bounds concurrent background refreshes.
func WithMaxRefreshes(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bgSem = make(chan struct{}, n)
		}
	}
}

// WithAbort installs an advisory abort flag polled by foreground scans.
func WithAbort(fn func() bool) Option {
	return func(c *Coordinator) {
		c.aborted = fn
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger.WithPrefix("merge")
		}
	}
}

// New creates a coordinator. local may be nil when there is no device source.
func New(store *cache.Store, disc Discoverer, local LocalSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:          store,
		discovery:      disc,
		local:          local,
		ttl:            cache.DefaultTTL,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         log.New(io.Discard),
		bgSem:          make(chan struct{}, DefaultMaxRefreshes),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the merged feed for identity. A fresh cache hit returns
// without network activity; a stale hit returns the cached payload and
// starts a background refresh; a miss fetches both sources and caches the
// result. Get never fails; an empty or invalid identity yields an empty
// result.
func (c *Coordinator) Get(ctx context.Context, identity string) models.MergeResult {
	id, ok := c.identity(identity)
	if !ok {
		return emptyResult()
	}

	entry, fresh, hit := c.cache.Get(id)
	switch {
	case hit && fresh:
		observability.RecordCacheLookup("fresh")
		return c.fromEntry(entry, true)
	case hit:
		observability.RecordCacheLookup("stale")
		c.refreshInBackground(id)
		return c.fromEntry(entry, false)
	}

	observability.RecordCacheLookup("miss")
	res := c.fetch(ctx, id, discovery.Request{Identity: id, Aborted: c.aborted}, time.Time{})
	c.store(id, res)
	return res
}

// ForceRefresh drops the cached entry and refetches synchronously.
func (c *Coordinator) ForceRefresh(ctx context.Context, identity string) models.MergeResult {
	id, ok := c.identity(identity)
	if !ok {
		return emptyResult()
	}
	if err := c.cache.Invalidate(id); err != nil {
		c.logger.Warn("invalidate before refresh failed", "identity", id, "err", err)
	}
	res := c.fetch(ctx, id, discovery.Request{Identity: id, Aborted: c.aborted}, time.Time{})
	c.store(id, res)
	return res
}

// OlderPage returns records that started strictly before until, using a
// discovery pass bounded by until. Pages are not cached. NextCursor is the
// until for the following page, or zero when the page is empty.
func (c *Coordinator) OlderPage(ctx context.Context, identity string, until time.Time) models.MergeResult {
	id, ok := c.identity(identity)
	if !ok || until.IsZero() {
		return emptyResult()
	}
	return c.fetch(ctx, id, discovery.Request{Identity: id, Until: until, Aborted: c.aborted}, until)
}

// Invalidate drops the cached feed for identity.
func (c *Coordinator) Invalidate(identity string) error {
	id, ok := c.identity(identity)
	if !ok {
		return relay.ErrInvalidIdentity
	}
	return c.cache.Invalidate(id)
}

// Close stops new background refreshes and waits for running ones.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) identity(raw string) (string, bool) {
	id, err := relay.NormalizeIdentity(raw)
	if err != nil {
		c.logger.Debug("identity missing or invalid", "err", err)
		return "", false
	}
	return id, true
}

// fetch runs the local fetch and discovery concurrently and merges them.
// A non-zero before keeps only records that started before it.
func (c *Coordinator) fetch(ctx context.Context, id string, req discovery.Request, before time.Time) models.MergeResult {
	started := time.Now()

	var (
		wg       sync.WaitGroup
		local    []models.WorkoutRecord
		localErr error
		found    discovery.Result
		discErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		local, localErr = c.fetchLocal(ctx, id)
	}()
	go func() {
		defer wg.Done()
		found, discErr = c.discover(ctx, req)
	}()
	wg.Wait()

	var errs []string
	if localErr != nil {
		c.logger.Warn("local workouts unavailable", "identity", id, "err", localErr)
		errs = append(errs, localErr.Error())
		local = nil
	}
	if discErr != nil {
		c.logger.Error("discovery failed", "identity", id, "err", discErr)
		errs = append(errs, discErr.Error())
	} else if d := found.Stats; d.RelayFailures > 0 && d.RelaySuccesses == 0 {
		errs = append(errs, fmt.Sprintf("no relay reachable (%d failed)", d.RelayFailures))
	}

	network := parser.ParseAll(found.Events)
	if !before.IsZero() {
		network = startedBefore(network, before)
		local = startedBefore(local, before)
	}

	merged := dedup.Merge(local, network)
	observability.RecordDuplicates(merged.DuplicateCount)

	res := models.MergeResult{
		Records:         merged.Records,
		DuplicateCount:  merged.DuplicateCount,
		FetchDurationMs: time.Since(started).Milliseconds(),
		Partial:         found.Stats.Partial || localErr != nil || discErr != nil,
		Errors:          errs,
	}
	if discErr == nil {
		stats := found.Stats
		res.Discovery = &stats
	}
	res.CountOrigins()
	res.NextCursor = cursor(res.Records)
	return res
}

func (c *Coordinator) discover(ctx context.Context, req discovery.Request) (res discovery.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discovery panicked: %v", r)
		}
	}()
	return c.discovery.Discover(ctx, req), nil
}

func (c *Coordinator) fetchLocal(ctx context.Context, id string) (recs []models.WorkoutRecord, err error) {
	if c.local == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("local source panicked: %v", r)
		}
	}()
	return c.local.FetchLocalWorkouts(ctx, id)
}

// store writes a fetched result to the cache unless discovery did not
// complete or failed on every relay, in which case the previous entry is
// kept. Write failures are logged by the cache and never reach the caller.
func (c *Coordinator) store(id string, res models.MergeResult) {
	d := res.Discovery
	switch {
	case d == nil, d.Aborted:
		return
	case d.RelayFailures > 0 && d.RelaySuccesses == 0:
		c.logger.Warn("not caching result of failed discovery", "identity", id)
		return
	}
	_ = c.cache.Set(id, res.Records, c.ttl, res.DuplicateCount)
}

func (c *Coordinator) refreshInBackground(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ch := c.refreshes.DoChan(id, func() (any, error) {
		select {
		case c.bgSem <- struct{}{}:
		default:
			observability.RecordRefresh("skipped")
			c.logger.Debug("background refresh skipped", "identity", id)
			return nil, nil
		}
		defer func() { <-c.bgSem }()

		if err := c.refresh(id); err != nil {
			observability.RecordRefresh("failed")
			c.logger.Error("background refresh failed", "identity", id, "err", err)
			return nil, nil
		}
		observability.RecordRefresh("completed")
		return nil, nil
	})

	go func() {
		defer c.wg.Done()
		<-ch
	}()
}

func (c *Coordinator) refresh(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	observability.RecordRefresh("started")

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	res := c.fetch(ctx, id, discovery.Request{Identity: id}, time.Time{})
	if res.Discovery == nil {
		return fmt.Errorf("refresh %s: %s", id, strings.Join(res.Errors, "; "))
	}
	c.store(id, res)
	c.logger.Debug("background refresh finished", "identity", id, "records", len(res.Records))
	return nil
}

func (c *Coordinator) fromEntry(entry cache.Entry, fresh bool) models.MergeResult {
	res := models.MergeResult{
		Records:         entry.Records,
		DuplicateCount:  entry.DuplicateCount,
		FromCache:       true,
		Stale:           !fresh,
		CacheAgeSeconds: int64(entry.Age(c.cache.Now()) / time.Second),
	}
	if res.Records == nil {
		res.Records = []models.WorkoutRecord{}
	}
	res.CountOrigins()
	res.NextCursor = cursor(res.Records)
	return res
}

func emptyResult() models.MergeResult {
	return models.MergeResult{Records: []models.WorkoutRecord{}}
}

func startedBefore(records []models.WorkoutRecord, before time.Time) []models.WorkoutRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.StartTime.Before(before) {
			out = append(out, r)
		}
	}
	return out
}

func cursor(records []models.WorkoutRecord) int64 {
	if len(records) == 0 {
		return 0
	}
	return cache.NextPageCursor(records).Unix()
}
