package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"learn.calllimiter/config"
)

// ConfigFile represents the top-level structure of the configuration file.
type ConfigFile struct {
	Limiter config.LimiterConfig `yaml:"limiter"`
}

// LoadConfig reads, unmarshals and validates the YAML config.
func LoadConfig(path string) (*ConfigFile, error) {
	log.Debug().Str("config_path", path).Msg("Loading configuration")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg ConfigFile
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file %s: %w", path, err)
	}
	if err := cfg.Limiter.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	log.Debug().Str("config_path", path).Str("limiter_key", cfg.Limiter.Key).Msg("Configuration loaded successfully")
	return &cfg, nil
}

// InitRedisClient initializes and pings a Redis client based on config.
func InitRedisClient(params *config.RedisBackendConfig) (*redis.Client, error) {
	if params == nil {
		return nil, fmt.Errorf("redis backend selected but redis_params are missing in config")
	}
	log.Info().Str("backend", "Redis").Str("address", params.Address).Int("db", params.DB).Msg("Initializing Redis client")
	client := redis.NewClient(&redis.Options{
		Addr:     params.Address,
		Password: params.Password,
		DB:       params.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		// Close the client if ping fails to prevent resource leaks
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", params.Address, err)
	}
	log.Info().Str("backend", "Redis").Str("address", params.Address).Msg("Connected to Redis successfully")
	return client, nil
}

// InitMemcacheClient creates a Memcache client and checks that the servers answer.
func InitMemcacheClient(params *config.MemcacheBackendConfig) (*memcache.Client, error) {
	if params == nil || len(params.Addresses) == 0 {
		return nil, fmt.Errorf("memcache backend selected but memcache_params are missing in config")
	}
	log.Info().Str("backend", "Memcache").Strs("addresses", params.Addresses).Msg("Initializing Memcache client")
	client := memcache.New(params.Addresses...)
	if err := client.Ping(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Memcache at %v: %w", params.Addresses, err)
	}
	log.Info().Str("backend", "Memcache").Strs("addresses", params.Addresses).Msg("Connected to Memcache successfully")
	return client, nil
}
