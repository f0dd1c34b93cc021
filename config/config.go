package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Validate for any rejected configuration.
var ErrInvalidConfig = errors.New("invalid limiter configuration")

// RegressionPolicy selects how a limiter treats a timestamp earlier than its newest admission.
type RegressionPolicy string

const (
	RejectOnRegression RegressionPolicy = "reject"
	ClampOnRegression  RegressionPolicy = "clamp"
)

// BackendType represents the storage backend of the audit export.
type BackendType string

const (
	InMemory BackendType = "in_memory"
	Redis    BackendType = "redis"
	Memcache BackendType = "memcache"
)

// LimiterConfig holds the configuration for the call limiter.
type LimiterConfig struct {
	Key   string `yaml:"key"`
	Limit int    `yaml:"limit"`

	// Resolution truncates timestamps before comparison. 1s reproduces integer-second clocks.
	Resolution        time.Duration    `yaml:"resolution,omitempty"`
	OnClockRegression RegressionPolicy `yaml:"on_clock_regression,omitempty"`
	// AuditCapacity bounds the in-memory accepted/rejected logs. 0 keeps everything.
	AuditCapacity int `yaml:"audit_capacity,omitempty"`

	Forward *ForwardConfig `yaml:"forward,omitempty"`
	Audit   *AuditConfig   `yaml:"audit,omitempty"`
}

// ForwardConfig describes the downstream API admitted calls are sent to.
type ForwardConfig struct {
	URL     string         `yaml:"url"`
	Method  string         `yaml:"method,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
	Breaker *BreakerConfig `yaml:"breaker,omitempty"`
}

// BreakerConfig holds circuit breaker parameters for the forwarder.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// AuditConfig selects where decisions are exported.
type AuditConfig struct {
	Backend  BackendType   `yaml:"backend"`
	Capacity int64         `yaml:"capacity,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	// Timeout bounds each export call. 0 uses the limiter default.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	RedisParams    *RedisBackendConfig    `yaml:"redis_params,omitempty"`
	MemcacheParams *MemcacheBackendConfig `yaml:"memcache_params,omitempty"`
}

// RedisBackendConfig holds parameters for the Redis backend.
type RedisBackendConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// MemcacheBackendConfig holds parameters for the Memcache backend.
type MemcacheBackendConfig struct {
	Addresses []string `yaml:"addresses"`
}

// Validate checks the configuration before any limiter is built.
func (c *LimiterConfig) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: missing 'key' field", ErrInvalidConfig)
	}
	if c.Limit < 1 {
		return fmt.Errorf("%w: limiter '%s': limit must be at least 1, got %d", ErrInvalidConfig, c.Key, c.Limit)
	}
	if c.Resolution < 0 {
		return fmt.Errorf("%w: limiter '%s': negative resolution %s", ErrInvalidConfig, c.Key, c.Resolution)
	}
	if c.AuditCapacity < 0 {
		return fmt.Errorf("%w: limiter '%s': negative audit_capacity %d", ErrInvalidConfig, c.Key, c.AuditCapacity)
	}
	switch c.OnClockRegression {
	case "", RejectOnRegression, ClampOnRegression:
	default:
		return fmt.Errorf("%w: limiter '%s': unknown on_clock_regression '%s'", ErrInvalidConfig, c.Key, c.OnClockRegression)
	}
	if c.Forward != nil && c.Forward.URL == "" {
		return fmt.Errorf("%w: limiter '%s': forward section requires a url", ErrInvalidConfig, c.Key)
	}
	if c.Audit != nil {
		if c.Audit.Capacity < 0 {
			return fmt.Errorf("%w: limiter '%s': negative audit capacity %d", ErrInvalidConfig, c.Key, c.Audit.Capacity)
		}
		if c.Audit.TTL < 0 {
			return fmt.Errorf("%w: limiter '%s': negative audit ttl %s", ErrInvalidConfig, c.Key, c.Audit.TTL)
		}
		if c.Audit.Timeout < 0 {
			return fmt.Errorf("%w: limiter '%s': negative audit timeout %s", ErrInvalidConfig, c.Key, c.Audit.Timeout)
		}
		switch c.Audit.Backend {
		case InMemory:
		case Redis:
			if c.Audit.RedisParams == nil || c.Audit.RedisParams.Address == "" {
				return fmt.Errorf("%w: limiter '%s': redis backend selected but redis_params are missing", ErrInvalidConfig, c.Key)
			}
		case Memcache:
			if c.Audit.MemcacheParams == nil || len(c.Audit.MemcacheParams.Addresses) == 0 {
				return fmt.Errorf("%w: limiter '%s': memcache backend selected but memcache_params are missing", ErrInvalidConfig, c.Key)
			}
		default:
			return fmt.Errorf("%w: limiter '%s': unsupported audit backend '%s'", ErrInvalidConfig, c.Key, c.Audit.Backend)
		}
	}
	return nil
}
