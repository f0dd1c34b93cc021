package api

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"learn.calllimiter/config"
	auditmemcache "learn.calllimiter/internal/auditlog/memcache"
	auditredis "learn.calllimiter/internal/auditlog/redis"
	"learn.calllimiter/internal/forward"
	"learn.calllimiter/internal/slidingwindow"
	"learn.calllimiter/metrics"
	"learn.calllimiter/types"
)

// Factory is responsible for creating the limiter and its collaborators from configuration.
type Factory struct {
	metrics *metrics.RateLimitMetrics
}

// NewFactory creates a new Factory. m may be nil when metrics are not collected.
func NewFactory(m *metrics.RateLimitMetrics) *Factory {
	return &Factory{metrics: m}
}

// CreateLimiter builds a limiter from cfg using the available backend clients.
// extra options are applied after the configured ones.
func (f *Factory) CreateLimiter(cfg config.LimiterConfig, clients types.BackendClients, extra ...slidingwindow.Option) (types.Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("limiter_key", cfg.Key).Int("limit", cfg.Limit).Msg("Factory: Creating limiter")

	opts := []slidingwindow.Option{
		slidingwindow.WithResolution(cfg.Resolution),
		slidingwindow.WithAuditCapacity(cfg.AuditCapacity),
	}
	if cfg.OnClockRegression == config.ClampOnRegression {
		opts = append(opts, slidingwindow.WithRegressionPolicy(slidingwindow.ClampOnRegression))
	}

	var fwd types.ForwardFunc = forward.Noop
	if cfg.Forward != nil {
		httpFwd, err := forward.NewHTTPForwarder(cfg.Key, *cfg.Forward, nil)
		if err != nil {
			return nil, fmt.Errorf("limiter '%s': failed to create forwarder: %w", cfg.Key, err)
		}
		fwd = httpFwd.Forward
	}
	opts = append(opts, slidingwindow.WithForwarder(f.metrics.InstrumentForward(cfg.Key, fwd)))

	if f.metrics != nil {
		opts = append(opts, slidingwindow.WithSinks(f.metrics))
	}

	sink, err := createAuditSink(cfg, clients)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		opts = append(opts, slidingwindow.WithSinks(sink), slidingwindow.WithSinkTimeout(cfg.Audit.Timeout))
	}

	limiter, err := slidingwindow.NewLimiter(cfg.Key, cfg.Limit, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

func createAuditSink(cfg config.LimiterConfig, clients types.BackendClients) (types.AuditSink, error) {
	if cfg.Audit == nil {
		return nil, nil
	}
	prefix := "call_audit:" + cfg.Key

	switch cfg.Audit.Backend {
	case config.InMemory:
		// The limiter's own history already covers in-memory auditing.
		return nil, nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, fmt.Errorf("redis client is required but not provided for redis backend for key '%s'", cfg.Key)
		}
		return auditredis.NewSink(clients.RedisClient, prefix, cfg.Audit.Capacity, cfg.Audit.TTL), nil
	case config.Memcache:
		if clients.MemcacheClient == nil {
			return nil, fmt.Errorf("memcache client is required but not provided for memcache backend for key '%s'", cfg.Key)
		}
		return auditmemcache.NewSink(clients.MemcacheClient, prefix, cfg.Audit.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend type '%s' for key '%s'", cfg.Audit.Backend, cfg.Key)
	}
}
