package forward_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"learn.calllimiter/config"
	"learn.calllimiter/internal/forward"
)

func newServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewHTTPForwarder_RequiresURL(t *testing.T) {
	if _, err := forward.NewHTTPForwarder("api", config.ForwardConfig{}, nil); err == nil {
		t.Fatal("Expected error for missing url")
	}
}

func TestForward_Success(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := newServer(t, &status, &hits)

	fwd, err := forward.NewHTTPForwarder("api", config.ForwardConfig{URL: srv.URL, Method: http.MethodGet}, nil)
	if err != nil {
		t.Fatalf("NewHTTPForwarder failed: %v", err)
	}
	if err := fwd.Forward(context.Background()); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("Expected 1 downstream hit, got %d", hits.Load())
	}
}

func TestForward_ClientErrorDoesNotTripBreaker(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadRequest)
	srv := newServer(t, &status, &hits)

	fwd, err := forward.NewHTTPForwarder("api", config.ForwardConfig{
		URL:     srv.URL,
		Breaker: &config.BreakerConfig{MaxFailures: 1},
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPForwarder failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		err := fwd.Forward(context.Background())
		var statusErr *forward.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
			t.Fatalf("Call %d: expected 400 StatusError, got %v", i+1, err)
		}
		if !errors.Is(err, forward.ErrDownstreamStatus) {
			t.Fatalf("Call %d: expected ErrDownstreamStatus match", i+1)
		}
	}
	if fwd.State() != gobreaker.StateClosed {
		t.Fatalf("Expected closed breaker, got %s", fwd.State())
	}
	if hits.Load() != 3 {
		t.Fatalf("Expected 3 downstream hits, got %d", hits.Load())
	}
}

func TestForward_ServerErrorsOpenBreaker(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := newServer(t, &status, &hits)

	fwd, err := forward.NewHTTPForwarder("api", config.ForwardConfig{
		URL:     srv.URL,
		Breaker: &config.BreakerConfig{MaxFailures: 2, Timeout: time.Minute},
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPForwarder failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := fwd.Forward(context.Background()); !errors.Is(err, forward.ErrDownstreamStatus) {
			t.Fatalf("Call %d: expected downstream status error, got %v", i+1, err)
		}
	}
	if err := fwd.Forward(context.Background()); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Expected open breaker error, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("Open breaker should not reach downstream, got %d hits", hits.Load())
	}
}

func TestForward_CancelledContext(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := newServer(t, &status, &hits)

	fwd, err := forward.NewHTTPForwarder("api", config.ForwardConfig{URL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewHTTPForwarder failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := fwd.Forward(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestForward_CancelledCallersDoNotTripBreaker(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := newServer(t, &status, &hits)

	fwd, err := forward.NewHTTPForwarder("api", config.ForwardConfig{
		URL:     srv.URL,
		Breaker: &config.BreakerConfig{MaxFailures: 1, Timeout: time.Minute},
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPForwarder failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		if err := fwd.Forward(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Call %d: expected context.Canceled, got %v", i+1, err)
		}
	}
	if fwd.State() != gobreaker.StateClosed {
		t.Fatalf("Expected closed breaker after cancelled calls, got %s", fwd.State())
	}
	if err := fwd.Forward(context.Background()); err != nil {
		t.Fatalf("Forward after cancelled calls failed: %v", err)
	}
}

func TestNoop(t *testing.T) {
	if err := forward.Noop(context.Background()); err != nil {
		t.Fatalf("Noop returned %v", err)
	}
}
