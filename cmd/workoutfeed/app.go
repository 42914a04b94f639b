// ABOUTME: Lazily opened CLI resources: config, local store, feed cache, relay pool and coordinator.
// ABOUTME: closeAll releases them in dependency order once a command finishes.
package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harperreed/workoutfeed/internal/cache"
	"github.com/harperreed/workoutfeed/internal/config"
	"github.com/harperreed/workoutfeed/internal/discovery"
	"github.com/harperreed/workoutfeed/internal/logging"
	"github.com/harperreed/workoutfeed/internal/merge"
	"github.com/harperreed/workoutfeed/internal/relay"
	"github.com/harperreed/workoutfeed/internal/storage"
)

var (
	cfg    *config.Config
	logger *log.Logger

	repo        storage.Repository
	feedStore   *cache.Store
	relayPool   *relay.Pool
	coordinator *merge.Coordinator
)

// openRepo opens the local workout store once per command.
func openRepo() (storage.Repository, error) {
	if repo != nil {
		return repo, nil
	}
	r, err := cfg.OpenLocalStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	repo = r
	return repo, nil
}

// openStore opens the feed cache once per command.
func openStore() (*cache.Store, error) {
	if feedStore != nil {
		return feedStore, nil
	}
	backend, err := cfg.OpenCacheBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	opts := []cache.Option{cache.WithLogger(logger)}
	if backend != nil {
		opts = append(opts, cache.WithBackend(backend))
	}
	feedStore = cache.New(opts...)
	return feedStore, nil
}

// openFeed wires the merge coordinator. aborted may be nil.
func openFeed(aborted func() bool) (*merge.Coordinator, error) {
	if coordinator != nil {
		return coordinator, nil
	}

	local, err := openRepo()
	if err != nil {
		return nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	relayPool = relay.NewPool(cfg.GetRelays(),
		relay.WithDialTimeout(cfg.GetDialTimeout()),
		relay.WithLogger(logger),
	)
	engine := discovery.NewEngine(relayPool,
		discovery.WithLadder(discovery.DefaultLadder(cfg.GetWindowTimeout(), cfg.GetBroadTimeouts())),
		discovery.WithPageLadder(discovery.BroadLadder(cfg.GetBroadTimeouts())),
		discovery.WithWindowTimeout(cfg.GetWindowTimeout()),
		discovery.WithSufficient(cfg.GetSufficient()),
		discovery.WithLogger(logger),
	)

	opts := []merge.Option{
		merge.WithTTL(cfg.GetTTL()),
		merge.WithLogger(logger),
	}
	if aborted != nil {
		opts = append(opts, merge.WithAbort(aborted))
	}
	coordinator = merge.New(store, engine, local, opts...)
	return coordinator, nil
}

// resolveIdentity picks the identity from a positional argument, the
// --identity flag, or the config, in that order.
func resolveIdentity(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if identityFlag != "" {
		return identityFlag
	}
	if cfg != nil {
		return cfg.Identity
	}
	return ""
}

// closeAll waits for background refreshes, then closes the relay pool,
// the cache and the local store.
func closeAll() error {
	var errs []error
	if coordinator != nil {
		coordinator.Close()
		coordinator = nil
	}
	if relayPool != nil {
		if err := relayPool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relays: %w", err))
		}
		relayPool = nil
	}
	if feedStore != nil {
		if err := feedStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
		feedStore = nil
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close local store: %w", err))
		}
		repo = nil
	}
	return errors.Join(errs...)
}

func init() {
	logger = logging.Discard()
}
