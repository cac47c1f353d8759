// Package config provides configuration types and loading for the
// governance engine.
package config

// Config is the top-level configuration for the govern CLI and engine.
type Config struct {
	// Store configures rule persistence.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// History configures the execution history ring and optional archive.
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Cache configures optional validation result caching.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Sync configures global rule synchronization across project roots.
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Metrics configures optional Prometheus exposure.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// StoreConfig configures the file-backed rule store.
type StoreConfig struct {
	// Path is the rule document location. The extension selects the
	// encoding: .yaml/.yml for YAML, anything else for JSON.
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
	// Watch enables fsnotify-based hot reload of external edits.
	Watch bool `yaml:"watch" mapstructure:"watch"`
}

// HistoryConfig configures execution history retention.
type HistoryConfig struct {
	// Capacity bounds the in-memory history ring (default 1000).
	Capacity int `yaml:"capacity" mapstructure:"capacity" validate:"omitempty,min=1"`
	// ArchivePath, when set, enables the SQLite long-term archive.
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"`
}

// CacheConfig configures the validation result cache.
type CacheConfig struct {
	// Enabled turns result caching on. Off by default.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Size is the maximum number of cached verdicts (default 1000).
	Size int `yaml:"size" mapstructure:"size" validate:"omitempty,min=1"`
}

// SyncConfig configures the global rule synchronizer.
type SyncConfig struct {
	// CanonicalPath is the canonical markdown rule document.
	CanonicalPath string `yaml:"canonical_path" mapstructure:"canonical_path"`
	// Roots are the project roots receiving replicas.
	Roots []string `yaml:"roots" mapstructure:"roots"`
	// Retention is how many sync records to keep (default 50).
	Retention int `yaml:"retention" mapstructure:"retention" validate:"omitempty,min=1"`
}

// MetricsConfig configures Prometheus exposure.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (e.g. "127.0.0.1:9102").
	// Empty disables the listener; collectors still run in-process.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Default values applied by SetDefaults.
const (
	defaultStorePath       = "governance-rules.json"
	defaultHistoryCapacity = 1000
	defaultCacheSize       = 1000
	defaultSyncRetention   = 50
	defaultLogLevel        = "info"
)

// SetDefaults fills zero-valued optional fields.
func (c *Config) SetDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = defaultHistoryCapacity
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = defaultCacheSize
	}
	if c.Sync.Retention == 0 {
		c.Sync.Retention = defaultSyncRetention
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}
