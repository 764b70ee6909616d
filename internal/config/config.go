// Package config loads runtime settings for the asp CLI. Only cmd calls
// Load; everything below it receives explicit values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for an asp invocation.
// Values are populated from .asp.yaml, ASP_* env vars, and CLI flags.
type Config struct {
	StoreRoot       string        `mapstructure:"store_root"`
	RegistryPath    string        `mapstructure:"registry_path"`
	RegistryURL     string        `mapstructure:"registry_url"`
	Concurrency     int           `mapstructure:"concurrency"`
	RegistryTimeout time.Duration `mapstructure:"registry_timeout"`
	RegistryRetries int           `mapstructure:"registry_retries"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	ModulesDir      string        `mapstructure:"modules_dir"`
	LockFile        string        `mapstructure:"lock_file"`
	ProjectFile     string        `mapstructure:"project_file"`
	VerifySnapshots bool          `mapstructure:"verify_snapshots"`
	TelemetryPath   string        `mapstructure:"telemetry_path"`
	RequireHarness  bool          `mapstructure:"require_harness"`
	Verbose         bool          `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".asp")

	viper.SetDefault("store_root", filepath.Join(base, "store"))
	viper.SetDefault("registry_path", filepath.Join(base, "registry"))
	viper.SetDefault("registry_url", "")
	viper.SetDefault("concurrency", max(runtime.NumCPU(), 1))
	viper.SetDefault("registry_timeout", 30*time.Second)
	viper.SetDefault("registry_retries", 3)
	viper.SetDefault("lock_timeout", 30*time.Second)
	viper.SetDefault("modules_dir", "asp_modules")
	viper.SetDefault("lock_file", "asp-lock.json")
	viper.SetDefault("project_file", "asp-targets.toml")
	viper.SetDefault("verify_snapshots", false)
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("require_harness", false)
	viper.SetDefault("verbose", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RegistryRetries < 0 {
		cfg.RegistryRetries = 0
	}
	return cfg, nil
}
