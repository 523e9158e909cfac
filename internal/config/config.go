package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys,
// e.g. PKGVERIFY_VERIFY_WORKERS.
const EnvPrefix = "PKGVERIFY"

// EnvKeyReplacer maps nested keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config represents the complete pkgverify configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Verify VerifyConfig `mapstructure:"verify"`
	Watch  WatchConfig  `mapstructure:"watch"`
	Output OutputConfig `mapstructure:"output"`
	Serve  ServeConfig  `mapstructure:"serve"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// VerifyConfig contains verification settings
type VerifyConfig struct {
	// Mode is "stop-first" or "collect-all".
	Mode               string `mapstructure:"mode"`
	Workers            int    `mapstructure:"workers"`
	StrictRegularFiles bool   `mapstructure:"strict_regular_files"`

	// MaxReadBytesPerSec throttles content hashing; 0 = unlimited.
	MaxReadBytesPerSec int64 `mapstructure:"max_read_bytes_per_sec"`
}

// WatchConfig contains tamper watcher settings
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// OutputConfig contains report settings
type OutputConfig struct {
	Format     string `mapstructure:"format"`
	ReportFile string `mapstructure:"report_file"`
}

// ServeConfig contains HTTP verification service settings
type ServeConfig struct {
	Listen string `mapstructure:"listen"`

	// Root is the directory package_dir requests are resolved against.
	Root              string `mapstructure:"root"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Verify: VerifyConfig{
			Mode:               "stop-first",
			Workers:            1,
			StrictRegularFiles: false,
			MaxReadBytesPerSec: 0,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Output: OutputConfig{
			Format:     "text",
			ReportFile: "",
		},
		Serve: ServeConfig{
			Listen:            "127.0.0.1:9091",
			Root:              ".",
			RequestsPerMinute: 60,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}

	if c.Verify.Mode != "stop-first" && c.Verify.Mode != "collect-all" {
		return fmt.Errorf("verify.mode must be 'stop-first' or 'collect-all'")
	}
	if c.Verify.Workers < 1 {
		return fmt.Errorf("verify.workers must be at least 1")
	}
	if c.Verify.MaxReadBytesPerSec < 0 {
		return fmt.Errorf("verify.max_read_bytes_per_sec cannot be negative")
	}

	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}

	validFormats := []string{"text", "json", "yaml"}
	if !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("output.format must be one of: text, json, yaml")
	}

	if c.Serve.Listen == "" {
		return fmt.Errorf("serve.listen cannot be empty")
	}
	if c.Serve.Root == "" {
		return fmt.Errorf("serve.root cannot be empty")
	}
	if c.Serve.RequestsPerMinute < 0 {
		return fmt.Errorf("serve.requests_per_minute cannot be negative")
	}

	return nil
}

// SetDefaults registers the default value of every key with v so that they are
// available during unmarshal and visible to env lookups.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Log
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	// Verify
	v.SetDefault("verify.mode", defaults.Verify.Mode)
	v.SetDefault("verify.workers", defaults.Verify.Workers)
	v.SetDefault("verify.strict_regular_files", defaults.Verify.StrictRegularFiles)
	v.SetDefault("verify.max_read_bytes_per_sec", defaults.Verify.MaxReadBytesPerSec)

	// Watch
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)

	// Output
	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("output.report_file", defaults.Output.ReportFile)

	// Serve
	v.SetDefault("serve.listen", defaults.Serve.Listen)
	v.SetDefault("serve.root", defaults.Serve.Root)
	v.SetDefault("serve.requests_per_minute", defaults.Serve.RequestsPerMinute)
}

// LoadConfig loads configuration from file, environment, and flags already bound to v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// This covers both ConfigFileNotFoundError (search paths) and file not exist (SetConfigFile)
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
