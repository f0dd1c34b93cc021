// Package forward provides the downstream call made for admitted attempts.
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"learn.calllimiter/config"
	"learn.calllimiter/types"
)

// Default forwarder settings.
const (
	defaultTimeout       = 5 * time.Second
	defaultMaxFailures   = uint32(5)
	defaultBreakerOpen   = 30 * time.Second
	defaultBreakerWindow = 60 * time.Second
)

// ErrDownstreamStatus is matched by every *StatusError.
var ErrDownstreamStatus = errors.New("downstream returned non-success status")

// StatusError reports a non-2xx response from the downstream API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrDownstreamStatus, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrDownstreamStatus
}

// Noop is the forwarder used when no downstream is configured.
func Noop(context.Context) error { return nil }

var _ types.ForwardFunc = Noop

// HTTPForwarder sends one request to a downstream URL per admitted call.
// Transport failures and 5xx responses count against a circuit breaker; while it is
// open calls fail fast with gobreaker.ErrOpenState.
type HTTPForwarder struct {
	client  *http.Client
	url     string
	method  string
	breaker *gobreaker.CircuitBreaker[int]
}

// NewHTTPForwarder builds a forwarder from cfg. A nil client uses a client with cfg.Timeout.
func NewHTTPForwarder(name string, cfg config.ForwardConfig, client *http.Client) (*HTTPForwarder, error) {
	if cfg.URL == "" {
		return nil, errors.New("forward url is required")
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	maxFailures, openFor, interval := defaultMaxFailures, defaultBreakerOpen, defaultBreakerWindow
	if b := cfg.Breaker; b != nil {
		if b.MaxFailures > 0 {
			maxFailures = b.MaxFailures
		}
		if b.Timeout > 0 {
			openFor = b.Timeout
		}
		if b.Interval > 0 {
			interval = b.Interval
		}
	}

	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "forward:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Forward: Circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// A caller that went away says nothing about downstream health.
			if errors.Is(err, context.Canceled) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	log.Info().Str("forwarder", "HTTP").Str("limiter_key", name).Str("url", cfg.URL).Str("method", method).
		Uint32("max_failures", maxFailures).Msg("Forward: Initialized")
	return &HTTPForwarder{client: client, url: cfg.URL, method: method, breaker: cb}, nil
}

// Forward performs the downstream request.
func (f *HTTPForwarder) Forward(ctx context.Context) error {
	_, err := f.breaker.Execute(func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, f.method, f.url, nil)
		if err != nil {
			return 0, fmt.Errorf("build downstream request: %w", err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("downstream request: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, &StatusError{Code: resp.StatusCode}
		}
		return resp.StatusCode, nil
	})
	return err
}

// State reports the circuit breaker state.
func (f *HTTPForwarder) State() gobreaker.State {
	return f.breaker.State()
}
