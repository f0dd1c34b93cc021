// Package gateway exposes the call limiter over HTTP.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"learn.calllimiter/types"
)

// Handler admits or rejects each request through the limiter.
// Admitted requests are forwarded by the limiter's own forward operation.
type Handler struct {
	limiter types.Limiter
}

// NewHandler creates a new Handler.
func NewHandler(limiter types.Limiter) *Handler {
	return &Handler{limiter: limiter}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	decision, err := h.limiter.Call(r.Context())
	if decision == types.Rejected {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		log.Debug().Str("limiter_key", h.limiter.Key()).Str("remote_addr", r.RemoteAddr).Msg("Gateway: Call rate limited")
		return
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = http.StatusServiceUnavailable
		}
		log.Warn().Err(err).Str("limiter_key", h.limiter.Key()).Int("status", status).Msg("Gateway: Forward failed")
		http.Error(w, fmt.Sprintf("forward failed: %v", err), status)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "forwarded")
}

// Stats entry bounds for the "entries" query parameter.
const (
	DefaultStatsEntries = 100
	MaxStatsEntries     = 10000
)

// Stats is the body served by the stats handler.
type Stats struct {
	Key              string      `json:"key"`
	Limit            int         `json:"limit"`
	AcceptedTotal    uint64      `json:"accepted_total"`
	RejectedTotal    uint64      `json:"rejected_total"`
	AcceptedRetained []time.Time `json:"accepted"`
	RejectedRetained []time.Time `json:"rejected"`
}

// NewStatsHandler serves the limiter's totals and newest accepted and rejected timestamps as JSON.
// The "entries" query parameter selects how many timestamps of each kind are returned.
func NewStatsHandler(limiter types.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := DefaultStatsEntries
		if raw := r.URL.Query().Get("entries"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 || n > MaxStatsEntries {
				http.Error(w, fmt.Sprintf("entries must be an integer between 0 and %d", MaxStatsEntries), http.StatusBadRequest)
				return
			}
			entries = n
		}

		snap := limiter.Snapshot(entries)
		stats := Stats{
			Key:              limiter.Key(),
			Limit:            limiter.Limit(),
			AcceptedTotal:    snap.AcceptedTotal,
			RejectedTotal:    snap.RejectedTotal,
			AcceptedRetained: snap.Accepted,
			RejectedRetained: snap.Rejected,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Error().Err(err).Msg("Gateway: Failed to encode stats")
		}
	})
}
