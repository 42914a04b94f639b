// ABOUTME: workoutfeed configuration management with backend selection.
// ABOUTME: Handles the YAML settings file, defaults, and the local store and cache backend factories.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/workoutfeed/internal/cache"
	"github.com/harperreed/workoutfeed/internal/discovery"
	"github.com/harperreed/workoutfeed/internal/storage"
	"gopkg.in/yaml.v3"
)

// DefaultRelays is used when no relays are configured.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
	"wss://relay.nostr.band",
}

const (
	DefaultCacheBackend = "badger"
	DefaultLogLevel     = "warn"
	DefaultHTTPAddr     = ":8089"
	DefaultDialTimeout  = 4 * time.Second
)

// Config stores workoutfeed configuration.
type Config struct {
	// Identity is the default public identity (hex or npub) to query.
	Identity string `yaml:"identity,omitempty"`

	Relays []string `yaml:"relays,omitempty"`

	// DataDir is the root directory for data storage.
	// The local workouts.db and the persistent cache live here.
	// Supports ~ expansion for home directory. Defaults to ~/.local/share/workoutfeed.
	DataDir string `yaml:"data_dir,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`

	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
	HTTP      HTTPConfig      `yaml:"http,omitempty"`

	path string
}

// CacheConfig selects and tunes the persistent feed cache.
type CacheConfig struct {
	// Backend is "badger" (default), "leveldb", "charm" or "memory".
	Backend string        `yaml:"backend,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
	// CharmHost is the Charm server for the charm backend.
	CharmHost string `yaml:"charm_host,omitempty"`
}

// DiscoveryConfig tunes the relay strategy ladder.
type DiscoveryConfig struct {
	Sufficient    int             `yaml:"sufficient,omitempty"`
	WindowTimeout time.Duration   `yaml:"window_timeout,omitempty"`
	BroadTimeouts []time.Duration `yaml:"broad_timeouts,omitempty"`
	DialTimeout   time.Duration   `yaml:"dial_timeout,omitempty"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// GetRelays returns the configured relays, defaulting to DefaultRelays.
func (c *Config) GetRelays() []string {
	if len(c.Relays) == 0 {
		return append([]string(nil), DefaultRelays...)
	}
	return c.Relays
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetLogLevel returns the configured log level, defaulting to "warn".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return DefaultLogLevel
	}
	return c.LogLevel
}

// GetCacheBackend returns the configured cache backend, defaulting to "badger".
func (c *Config) GetCacheBackend() string {
	if c.Cache.Backend == "" {
		return DefaultCacheBackend
	}
	return strings.ToLower(c.Cache.Backend)
}

// GetTTL returns the cache freshness window.
func (c *Config) GetTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return cache.DefaultTTL
	}
	return c.Cache.TTL
}

// GetSufficient returns the early-exit threshold for discovery.
func (c *Config) GetSufficient() int {
	if c.Discovery.Sufficient <= 0 {
		return discovery.DefaultSufficient
	}
	return c.Discovery.Sufficient
}

// GetWindowTimeout returns the per-window deadline of the windowed strategy.
func (c *Config) GetWindowTimeout() time.Duration {
	if c.Discovery.WindowTimeout <= 0 {
		return discovery.DefaultWindowTimeout
	}
	return c.Discovery.WindowTimeout
}

// GetBroadTimeouts returns the deadlines of the broad strategies.
func (c *Config) GetBroadTimeouts() []time.Duration {
	if len(c.Discovery.BroadTimeouts) == 0 {
		return append([]time.Duration(nil), discovery.DefaultBroadTimeouts...)
	}
	return c.Discovery.BroadTimeouts
}

// GetDialTimeout returns the relay connection timeout.
func (c *Config) GetDialTimeout() time.Duration {
	if c.Discovery.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.Discovery.DialTimeout
}

// GetHTTPAddr returns the listen address for the serve command.
func (c *Config) GetHTTPAddr() string {
	if c.HTTP.Addr == "" {
		return DefaultHTTPAddr
	}
	return c.HTTP.Addr
}

// Path returns the file this config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return GetConfigPath()
	}
	return c.path
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenLocalStore opens the SQLite store of workouts recorded on this device.
func (c *Config) OpenLocalStore() (storage.Repository, error) {
	return storage.Open(filepath.Join(c.GetDataDir(), storage.DBFileName))
}

// OpenCacheBackend creates the persistent cache backend. The memory
// backend returns a nil Backend, leaving the store memory-only.
func (c *Config) OpenCacheBackend() (cache.Backend, error) {
	switch backend := c.GetCacheBackend(); backend {
	case "badger":
		b, err := cache.OpenBadger(filepath.Join(c.GetDataDir(), "cache"))
		if err != nil {
			return nil, err
		}
		return b, nil
	case "leveldb":
		l, err := cache.OpenLevelDB(filepath.Join(c.GetDataDir(), "cache.ldb"))
		if err != nil {
			return nil, err
		}
		return l, nil
	case "charm":
		b, err := cache.OpenCharm(c.Cache.CharmHost, filepath.Join(c.GetDataDir(), "charm"))
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", backend)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "workoutfeed", "config.yaml")
}

// Load reads config from the default path.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads config from path. A missing file yields an empty config.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{path: path}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	return &cfg, nil
}

// Save writes config to the file it was loaded from.
func (c *Config) Save() error {
	path := c.Path()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
