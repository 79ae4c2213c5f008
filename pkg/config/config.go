// Package config loads the engine's recognized settings keys (§6) from a
// YAML file, environment variables, and built-in defaults, in that order
// of increasing priority, the same viper-layered loading shape used
// elsewhere in this module's dependency graph for CLI tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/fulmenhq/confsync/internal/reconcile"
)

// Config is the on-disk/env-overridable shape of reconcile.Config.
type Config struct {
	SyncIntervalMS  int  `mapstructure:"sync_interval_ms"`
	WatchDebounceMS int  `mapstructure:"watch_debounce_ms"`
	AutoSync        bool `mapstructure:"auto_sync"`
	AutoCommitStore bool `mapstructure:"auto_commit_store"`
	SizeWarningMB   int  `mapstructure:"size_warning_mb"`
	SizeDangerMB    int  `mapstructure:"size_danger_mb"`
	SizeBlockedMB   int  `mapstructure:"size_blocked_mb"`
}

// ToEngineConfig converts the loaded configuration to reconcile.Config.
func (c Config) ToEngineConfig() reconcile.Config {
	return reconcile.Config{
		SyncIntervalMS:  c.SyncIntervalMS,
		WatchDebounceMS: c.WatchDebounceMS,
		AutoSync:        c.AutoSync,
		AutoCommitStore: c.AutoCommitStore,
		SizeWarningMB:   c.SizeWarningMB,
		SizeDangerMB:    c.SizeDangerMB,
		SizeBlockedMB:   c.SizeBlockedMB,
	}
}

var defaultConfig = func() Config {
	d := reconcile.DefaultConfig()
	return Config{
		SyncIntervalMS:  d.SyncIntervalMS,
		WatchDebounceMS: d.WatchDebounceMS,
		AutoSync:        d.AutoSync,
		AutoCommitStore: d.AutoCommitStore,
		SizeWarningMB:   d.SizeWarningMB,
		SizeDangerMB:    d.SizeDangerMB,
		SizeBlockedMB:   d.SizeBlockedMB,
	}
}()

// Load reads confsync.yaml from the current directory, the user's home
// directory, and the confsync home directory (in that search order),
// layering CONFSYNC_-prefixed environment variables and built-in
// defaults underneath.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("sync_interval_ms", defaultConfig.SyncIntervalMS)
	v.SetDefault("watch_debounce_ms", defaultConfig.WatchDebounceMS)
	v.SetDefault("auto_sync", defaultConfig.AutoSync)
	v.SetDefault("auto_commit_store", defaultConfig.AutoCommitStore)
	v.SetDefault("size_warning_mb", defaultConfig.SizeWarningMB)
	v.SetDefault("size_danger_mb", defaultConfig.SizeDangerMB)
	v.SetDefault("size_blocked_mb", defaultConfig.SizeBlockedMB)

	v.SetConfigName("confsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	if configDir, err := GetConfigDir(); err == nil {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("CONFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// GetConfsyncHome returns the confsync home directory, honoring
// CONFSYNC_HOME before falling back to ~/.confsync.
func GetConfsyncHome() (string, error) {
	if home := os.Getenv("CONFSYNC_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: user home dir: %w", err)
	}
	return filepath.Join(homeDir, ".confsync"), nil
}

// EnsureConfsyncHome creates the confsync home directory if it doesn't
// already exist.
func EnsureConfsyncHome() (string, error) {
	homeDir, err := GetConfsyncHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(homeDir, 0o750); err != nil {
		return "", fmt.Errorf("config: create confsync home: %w", err)
	}
	return homeDir, nil
}

// GetConfigDir returns the config subdirectory within the confsync home.
func GetConfigDir() (string, error) {
	homeDir, err := EnsureConfsyncHome()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, "config")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// GetLogDir returns the log subdirectory within the confsync home.
func GetLogDir() (string, error) {
	homeDir, err := EnsureConfsyncHome()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("config: create log dir: %w", err)
	}
	return dir, nil
}
