package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	apiinternal "learn.calllimiter/api/internal"
	"learn.calllimiter/config"
	"learn.calllimiter/metrics"
	"learn.calllimiter/types"
)

// clientCloser is an internal type that holds backend clients and implements io.Closer.
type clientCloser struct {
	clients types.BackendClients
}

// Close shuts down all initialized backend clients held by the clientCloser.
func (c *clientCloser) Close() error {
	var errs []error

	if c.clients.RedisClient != nil {
		if err := c.clients.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis client: %w", err))
		} else {
			log.Debug().Str("backend", "Redis").Msg("API: Client closed")
		}
	}
	if c.clients.MemcacheClient != nil {
		if err := c.clients.MemcacheClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Memcache client: %w", err))
		} else {
			log.Debug().Str("backend", "Memcache").Msg("API: Client closed")
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("API: Errors during backend client shutdown")
		return err
	}
	return nil
}

// NewLimiterFromConfigPath loads config, initializes any needed backend clients,
// and returns the limiter, its configuration and an io.Closer for backend clients.
// m may be nil.
func NewLimiterFromConfigPath(configPath string, m *metrics.RateLimitMetrics) (types.Limiter, *config.LimiterConfig, io.Closer, error) {
	cfgFile, err := apiinternal.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	cfg := cfgFile.Limiter

	clients := types.BackendClients{}
	closer := &clientCloser{}
	if cfg.Audit != nil {
		switch cfg.Audit.Backend {
		case config.Redis:
			if clients.RedisClient, err = apiinternal.InitRedisClient(cfg.Audit.RedisParams); err != nil {
				return nil, nil, nil, err
			}
		case config.Memcache:
			if clients.MemcacheClient, err = apiinternal.InitMemcacheClient(cfg.Audit.MemcacheParams); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	closer.clients = clients

	limiter, err := NewFactory(m).CreateLimiter(cfg, clients)
	if err != nil {
		closer.Close()
		return nil, nil, nil, fmt.Errorf("limiter '%s': failed to create instance: %w", cfg.Key, err)
	}

	log.Info().Str("limiter_key", cfg.Key).Int("limit", cfg.Limit).Msg("API: Limiter initialized")
	return limiter, &cfg, closer, nil
}
