package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"learn.calllimiter/api"
	"learn.calllimiter/config"
	"learn.calllimiter/internal/slidingwindow"
	"learn.calllimiter/metrics"
	"learn.calllimiter/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewLimiterFromConfigPath_InMemory(t *testing.T) {
	var hits atomic.Int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer downstream.Close()

	path := writeConfig(t, `
limiter:
  key: downstream_api
  limit: 2
  resolution: 1s
  on_clock_regression: clamp
  audit_capacity: 100
  forward:
    url: `+downstream.URL+`
    method: GET
    timeout: 2s
  audit:
    backend: in_memory
`)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewRateLimitMetrics(metrics.Options{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	limiter, cfg, closer, err := api.NewLimiterFromConfigPath(path, m)
	if err != nil {
		t.Fatalf("NewLimiterFromConfigPath failed: %v", err)
	}
	defer closer.Close()

	if cfg.Resolution != time.Second || cfg.Forward.Timeout != 2*time.Second {
		t.Fatalf("durations not decoded: resolution=%s timeout=%s", cfg.Resolution, cfg.Forward.Timeout)
	}
	if limiter.Key() != "downstream_api" || limiter.Limit() != 2 {
		t.Fatalf("unexpected limiter identity: %s/%d", limiter.Key(), limiter.Limit())
	}

	ctx := context.Background()
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := limiter.Attempt(ctx, now); err != nil {
			t.Fatalf("Attempt %d failed: %v", i+1, err)
		}
	}

	if hits.Load() != 2 {
		t.Fatalf("expected 2 forwarded calls, got %d", hits.Load())
	}
	accepted, rejected := limiter.Totals()
	if accepted != 2 || rejected != 1 {
		t.Fatalf("Totals() = (%d, %d), want (2, 1)", accepted, rejected)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("downstream_api", "rejected", "window_full")); got != 1 {
		t.Fatalf("expected 1 recorded rejection, got %f", got)
	}
}

func TestNewLimiterFromConfigPath_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ZeroLimit", "limiter:\n  key: api\n  limit: 0\n"},
		{"MissingKey", "limiter:\n  limit: 5\n"},
		{"UnknownField", "limiter:\n  key: api\n  limit: 5\n  window: 2s\n"},
		{"BadDuration", "limiter:\n  key: api\n  limit: 5\n  resolution: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			if _, _, _, err := api.NewLimiterFromConfigPath(path, nil); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		if _, _, _, err := api.NewLimiterFromConfigPath(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("ZeroLimitIsConfigError", func(t *testing.T) {
		path := writeConfig(t, "limiter:\n  key: api\n  limit: 0\n")
		_, _, _, err := api.NewLimiterFromConfigPath(path, nil)
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestFactory_CreateLimiter(t *testing.T) {
	factory := api.NewFactory(nil)

	t.Run("MissingRedisClient", func(t *testing.T) {
		cfg := config.LimiterConfig{Key: "api", Limit: 1, Audit: &config.AuditConfig{
			Backend:     config.Redis,
			RedisParams: &config.RedisBackendConfig{Address: "localhost:6379"},
		}}
		if _, err := factory.CreateLimiter(cfg, types.BackendClients{}); err == nil {
			t.Fatal("expected error for missing redis client")
		}
	})

	t.Run("MissingMemcacheClient", func(t *testing.T) {
		cfg := config.LimiterConfig{Key: "api", Limit: 1, Audit: &config.AuditConfig{
			Backend:        config.Memcache,
			MemcacheParams: &config.MemcacheBackendConfig{Addresses: []string{"localhost:11211"}},
		}}
		if _, err := factory.CreateLimiter(cfg, types.BackendClients{}); err == nil {
			t.Fatal("expected error for missing memcache client")
		}
	})

	t.Run("ExtraOptionsApplied", func(t *testing.T) {
		now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
		limiter, err := factory.CreateLimiter(config.LimiterConfig{Key: "api", Limit: 1}, types.BackendClients{},
			slidingwindow.WithClock(func() time.Time { return now }))
		if err != nil {
			t.Fatalf("CreateLimiter failed: %v", err)
		}
		if _, err := limiter.Call(context.Background()); err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if got := limiter.Accepted(); len(got) != 1 || !got[0].Equal(now) {
			t.Fatalf("expected injected clock timestamp, got %v", got)
		}
	})
}
