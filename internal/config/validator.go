package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidDrivers returns the list of valid pool drivers
func ValidDrivers() []string {
	return []string{"docker", "fake"}
}

// ValidStoreBackends returns the list of valid store backends
func ValidStoreBackends() []string {
	return []string{"memory", "redis"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateQueue()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateMaintenance()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.Size < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.size",
			Value:   c.Pool.Size,
			Message: "must be at least 1",
		})
	}
	if c.Pool.Driver != "" && !slices.Contains(ValidDrivers(), c.Pool.Driver) {
		errors = append(errors, ValidationError{
			Field:   "pool.driver",
			Value:   c.Pool.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}
	if c.Pool.BasePort < 1 || c.Pool.BasePort > 65535-c.Pool.Size {
		errors = append(errors, ValidationError{
			Field:   "pool.base_port",
			Value:   c.Pool.BasePort,
			Message: fmt.Sprintf("must leave room for %d slot ports below 65536", c.Pool.Size),
		})
	}

	return errors
}

// validateQueue validates the QueueConfig
func (c *Config) validateQueue() []ValidationError {
	var errors []ValidationError

	if c.Queue.OfferTTLSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "queue.offer_ttl_seconds",
			Value:   c.Queue.OfferTTLSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.TTLMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.ttl_minutes",
			Value:   c.Session.TTLMinutes,
			Message: "must be at least 1",
		})
	}
	if c.Session.CooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.cooldown_seconds",
			Value:   c.Session.CooldownSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Session.ReleaseGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.release_grace_seconds",
			Value:   c.Session.ReleaseGraceSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Backend != "" && !slices.Contains(ValidStoreBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "store.redis_addr",
			Value:   c.Store.RedisAddr,
			Message: "required when backend is redis",
		})
	}

	return errors
}

// validateAPI validates the APIConfig
func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	if c.API.ListenAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "api.listen_addr",
			Value:   c.API.ListenAddr,
			Message: "must not be empty",
		})
	}
	if c.API.RateLimitPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.rate_limit_per_second",
			Value:   c.API.RateLimitPerSecond,
			Message: "must be non-negative",
		})
	}
	if c.API.RateLimitPerSecond > 0 && c.API.RateLimitBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "api.rate_limit_burst",
			Value:   c.API.RateLimitBurst,
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}

	return errors
}

// validateMaintenance validates the MaintenanceConfig
func (c *Config) validateMaintenance() []ValidationError {
	var errors []ValidationError

	if c.Maintenance.SweepIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "maintenance.sweep_interval_seconds",
			Value:   c.Maintenance.SweepIntervalSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Maintenance.AdmissionTimeoutMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "maintenance.admission_timeout_ms",
			Value:   c.Maintenance.AdmissionTimeoutMs,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
