package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete browserd configuration
type Config struct {
	Pool        PoolConfig        `mapstructure:"pool"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Session     SessionConfig     `mapstructure:"session"`
	Store       StoreConfig       `mapstructure:"store"`
	API         APIConfig         `mapstructure:"api"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// PoolConfig controls the browser slot pool
type PoolConfig struct {
	// Size is the number of browser slots to provision (default: 3)
	Size int `mapstructure:"size"`
	// Driver selects the runtime driver: "docker" or "fake" (default: "docker")
	Driver string `mapstructure:"driver"`
	// Image is the container image run per slot
	Image string `mapstructure:"image"`
	// BasePort is the first host port; slot i listens on BasePort+i
	BasePort int `mapstructure:"base_port"`
}

// QueueConfig controls the admission waitlist
type QueueConfig struct {
	// OfferTTLSeconds is how long a notified room has to accept its
	// slot offer before it lapses (default: 30)
	OfferTTLSeconds int `mapstructure:"offer_ttl_seconds"`
}

// SessionConfig controls session lifetime and release behavior
type SessionConfig struct {
	// TTLMinutes is the maximum session lifetime before the sweep
	// reclaims the slot (default: 120)
	TTLMinutes int `mapstructure:"ttl_minutes"`
	// CooldownSeconds is the window after a release during which the
	// same room cannot request a new session (default: 60)
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
	// ReleaseGraceSeconds is the delay between deleting a session and
	// returning its slot, giving clients time to tear down (default: 5)
	ReleaseGraceSeconds int `mapstructure:"release_grace_seconds"`
}

// StoreConfig controls state persistence
type StoreConfig struct {
	// Backend is the persistence backend: "memory" or "redis" (default: "memory")
	Backend string `mapstructure:"backend"`
	// RedisAddr is the host:port of the redis server
	RedisAddr string `mapstructure:"redis_addr"`
	// RedisPassword is the optional redis AUTH password
	RedisPassword string `mapstructure:"redis_password"`
	// RedisDB is the redis database number
	RedisDB int `mapstructure:"redis_db"`
	// KeyPrefix namespaces all keys written by this daemon
	KeyPrefix string `mapstructure:"key_prefix"`
}

// APIConfig controls the HTTP surface
type APIConfig struct {
	// ListenAddr is the address the HTTP server binds to (default: ":8944")
	ListenAddr string `mapstructure:"listen_addr"`
	// RateLimitPerSecond is the sustained per-room request rate on the
	// session endpoints; 0 disables limiting (default: 5)
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	// RateLimitBurst is the per-room burst allowance (default: 10)
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// MaintenanceConfig controls the background sweeper
type MaintenanceConfig struct {
	// SweepIntervalSeconds is the cadence of the expiry sweeps (default: 10)
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	// AdmissionTimeoutMs bounds the try-acquire on the admission
	// section; on contention the sweep skips to the next tick (default: 250)
	AdmissionTimeoutMs int `mapstructure:"admission_timeout_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the directory log files are written to; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// OfferTTL returns the offer deadline window as a time.Duration
func (c *QueueConfig) OfferTTL() time.Duration {
	return time.Duration(c.OfferTTLSeconds) * time.Second
}

// TTL returns the session lifetime as a time.Duration
func (c *SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Cooldown returns the post-release cooldown window as a time.Duration
func (c *SessionConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ReleaseGrace returns the release grace delay as a time.Duration
func (c *SessionConfig) ReleaseGrace() time.Duration {
	return time.Duration(c.ReleaseGraceSeconds) * time.Second
}

// SweepInterval returns the sweep cadence as a time.Duration
func (c *MaintenanceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// AdmissionTimeout returns the admission try-acquire bound as a time.Duration
func (c *MaintenanceConfig) AdmissionTimeout() time.Duration {
	return time.Duration(c.AdmissionTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (c *APIConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Size:     3,
			Driver:   "docker",
			Image:    "ghcr.io/roomshare/remote-browser:latest",
			BasePort: 9222,
		},
		Queue: QueueConfig{
			OfferTTLSeconds: 30,
		},
		Session: SessionConfig{
			TTLMinutes:          120,
			CooldownSeconds:     60,
			ReleaseGraceSeconds: 5,
		},
		Store: StoreConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			RedisDB:   0,
			KeyPrefix: "browserd:",
		},
		API: APIConfig{
			ListenAddr:             ":8944",
			RateLimitPerSecond:     5,
			RateLimitBurst:         10,
			ShutdownTimeoutSeconds: 10,
		},
		Maintenance: MaintenanceConfig{
			SweepIntervalSeconds: 10,
			AdmissionTimeoutMs:   250,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Pool defaults
	viper.SetDefault("pool.size", defaults.Pool.Size)
	viper.SetDefault("pool.driver", defaults.Pool.Driver)
	viper.SetDefault("pool.image", defaults.Pool.Image)
	viper.SetDefault("pool.base_port", defaults.Pool.BasePort)

	// Queue defaults
	viper.SetDefault("queue.offer_ttl_seconds", defaults.Queue.OfferTTLSeconds)

	// Session defaults
	viper.SetDefault("session.ttl_minutes", defaults.Session.TTLMinutes)
	viper.SetDefault("session.cooldown_seconds", defaults.Session.CooldownSeconds)
	viper.SetDefault("session.release_grace_seconds", defaults.Session.ReleaseGraceSeconds)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.redis_addr", defaults.Store.RedisAddr)
	viper.SetDefault("store.redis_password", defaults.Store.RedisPassword)
	viper.SetDefault("store.redis_db", defaults.Store.RedisDB)
	viper.SetDefault("store.key_prefix", defaults.Store.KeyPrefix)

	// API defaults
	viper.SetDefault("api.listen_addr", defaults.API.ListenAddr)
	viper.SetDefault("api.rate_limit_per_second", defaults.API.RateLimitPerSecond)
	viper.SetDefault("api.rate_limit_burst", defaults.API.RateLimitBurst)
	viper.SetDefault("api.shutdown_timeout_seconds", defaults.API.ShutdownTimeoutSeconds)

	// Maintenance defaults
	viper.SetDefault("maintenance.sweep_interval_seconds", defaults.Maintenance.SweepIntervalSeconds)
	viper.SetDefault("maintenance.admission_timeout_ms", defaults.Maintenance.AdmissionTimeoutMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Init wires viper to the config file and environment. Environment
// variables use the BROWSERD_ prefix with dots replaced by underscores
// (e.g. BROWSERD_POOL_SIZE). A missing config file is not an error.
func Init(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(ConfigDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BROWSERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicitly named file that does not exist is also tolerated.
		if cfgFile != "" && os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// Watch re-reads the config file whenever it changes on disk and hands
// the re-validated result to onChange. Edits that fail validation are
// dropped; the running configuration stays as it was.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// Load reads the configuration from viper into a Config struct and validates it
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
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "browserd")
	}
	// Fall back to ~/.config/browserd
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browserd"
	}
	return filepath.Join(home, ".config", "browserd")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
