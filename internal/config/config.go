package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (IB_CLIENT_ID_MODE, ...).
const EnvPrefix = "IB"

// Client ID modes.
const (
	ModeAuto  = "auto"
	ModeFixed = "fixed"
)

// Config represents the complete iborker configuration
type Config struct {
	ClientID   ClientIDConfig   `mapstructure:"client_id" yaml:"client_id"`
	Locks      LocksConfig      `mapstructure:"locks" yaml:"locks"`
	Allocation AllocationConfig `mapstructure:"allocation" yaml:"allocation"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ClientIDConfig controls how a tool obtains its gateway client ID
type ClientIDConfig struct {
	// Mode is "auto" (allocate from the tool's range) or "fixed" (use Fixed verbatim)
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Start is the allocation floor added to every category offset (default: 1).
	// Every cooperating process must use the same value; a process with a
	// different floor scans a different window and can collide with, or skip,
	// identifiers held by the others.
	Start int `mapstructure:"start" yaml:"start"`
	// Fixed is the identifier used in fixed mode. Also read from the legacy
	// IB_CLIENT_ID variable.
	Fixed *int `mapstructure:"fixed" yaml:"fixed,omitempty"`
}

// IsFixed reports whether fixed mode is selected
func (c *ClientIDConfig) IsFixed() bool {
	return strings.EqualFold(c.Mode, ModeFixed)
}

// LocksConfig controls where lock markers live
type LocksConfig struct {
	// Dir is the lock directory (default: ~/.iborker/locks). A leading "~/" is
	// expanded to the user's home directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ResolveDir returns the lock directory with "~" expanded.
func (c *LocksConfig) ResolveDir() string {
	path := c.Dir
	if path == "" {
		return DefaultLocksDir()
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	return path
}

// AllocationConfig bounds automatic allocation
type AllocationConfig struct {
	// Timeout caps the whole acquisition, including waits on the reclaim guard
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GatewayConfig describes the trading gateway the launched tool connects to.
// It is passed through to child processes and never dialled here.
type GatewayConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ReadOnly bool          `mapstructure:"readonly" yaml:"readonly"`
}

// LoggingConfig controls diagnostic logging
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn" or "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for iborker.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which the log file is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls Prometheus textfile export
type MetricsConfig struct {
	// Textfile is the .prom file written after each allocation; empty disables export
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// DefaultLocksDir returns ~/.iborker/locks, or a relative .iborker/locks
// when the home directory cannot be determined.
func DefaultLocksDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".iborker", "locks")
	}
	return filepath.Join(home, ".iborker", "locks")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		ClientID: ClientIDConfig{
			Mode:  ModeAuto,
			Start: 1,
		},
		Locks: LocksConfig{
			Dir: "~/.iborker/locks",
		},
		Allocation: AllocationConfig{
			Timeout: 5 * time.Second,
		},
		Gateway: GatewayConfig{
			Host:    "127.0.0.1",
			Port:    7497, // TWS paper trading
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("client_id.mode", defaults.ClientID.Mode)
	viper.SetDefault("client_id.start", defaults.ClientID.Start)

	viper.SetDefault("locks.dir", defaults.Locks.Dir)

	viper.SetDefault("allocation.timeout", defaults.Allocation.Timeout)

	viper.SetDefault("gateway.host", defaults.Gateway.Host)
	viper.SetDefault("gateway.port", defaults.Gateway.Port)
	viper.SetDefault("gateway.timeout", defaults.Gateway.Timeout)
	viper.SetDefault("gateway.readonly", defaults.Gateway.ReadOnly)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// BindEnv makes every key overridable as IB_<SECTION>_<KEY>. The fixed
// client ID has no default, so it is bound explicitly, together with the
// legacy IB_CLIENT_ID name.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("client_id.fixed", EnvPrefix+"_CLIENT_ID_FIXED", EnvPrefix+"_CLIENT_ID")
}

// Load reads the configuration from viper into a Config struct and validates it.
// Returns an error if unmarshaling fails or if validation finds invalid values.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "iborker")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".iborker"
	}
	return filepath.Join(home, ".config", "iborker")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
