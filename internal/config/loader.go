package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for govern.yaml/.yml in
// standard locations. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully.
		viper.SetConfigName("govern")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GOVERN_STORE_PATH, GOVERN_LOG_LEVEL, ...
	viper.SetEnvPrefix("GOVERN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a govern config file with
// an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".govern"),
		"/etc/govern",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "govern"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment overrides.
// Example: GOVERN_STORE_PATH overrides store.path.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("store.path")
	_ = viper.BindEnv("store.watch")

	_ = viper.BindEnv("history.capacity")
	_ = viper.BindEnv("history.archive_path")

	_ = viper.BindEnv("cache.enabled")
	_ = viper.BindEnv("cache.size")

	_ = viper.BindEnv("sync.canonical_path")
	_ = viper.BindEnv("sync.retention")
	// Note: sync.roots is an array; use the config file for it.

	_ = viper.BindEnv("metrics.addr")
	_ = viper.BindEnv("log_level")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: run on env vars and defaults alone.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string when running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
