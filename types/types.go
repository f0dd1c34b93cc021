// Package types defines common types and interfaces used throughout the call limiter.
package types

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
)

// Decision is the outcome of a single admission attempt.
type Decision int

const (
	Rejected Decision = iota
	Admitted
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason explains why a decision was taken.
type Reason string

const (
	ReasonWindowOpen      Reason = "window_open"
	ReasonWindowFull      Reason = "window_full"
	ReasonClockRegression Reason = "clock_regression"
)

// Event describes one attempt as seen by the limiter.
type Event struct {
	// Key is the label of the limiter that produced the event.
	Key string
	// Seq increases by one per attempt, in call order.
	Seq       uint64
	Decision  Decision
	Reason    Reason
	Timestamp time.Time
}

// ForwardFunc performs the downstream call for an admitted attempt.
type ForwardFunc func(ctx context.Context) error

// AuditSink receives every decision taken by a limiter.
// Sinks are observers only; a limiter never reads back from them.
type AuditSink interface {
	Record(ctx context.Context, ev Event) error
}

// Snapshot is a consistent view of a limiter's history taken under one lock.
type Snapshot struct {
	// Accepted and Rejected hold the newest retained timestamps, in call order.
	Accepted      []time.Time
	Rejected      []time.Time
	AcceptedTotal uint64
	RejectedTotal uint64
}

// Limiter is the interface exposed by the sliding window call limiter.
type Limiter interface {
	// Attempt decides admission for a call made at now and forwards it when admitted.
	// An error is only returned when the forward operation fails.
	Attempt(ctx context.Context, now time.Time) (Decision, error)
	// Call is Attempt with the limiter's own clock.
	Call(ctx context.Context) (Decision, error)
	// Accepted returns the timestamps of admitted calls, in call order.
	Accepted() []time.Time
	// Rejected returns the timestamps of rejected calls, in call order.
	Rejected() []time.Time
	// Totals returns the lifetime number of admitted and rejected calls.
	Totals() (accepted, rejected uint64)
	// Snapshot returns totals and at most maxEntries of the newest timestamps per decision,
	// all read at the same instant. A negative maxEntries returns every retained timestamp.
	Snapshot(maxEntries int) Snapshot
	Key() string
	Limit() int
}

// BackendClients holds initialized backend client instances.
type BackendClients struct {
	// RedisClient is the Redis client instance.
	RedisClient *redis.Client
	// MemcacheClient is the Memcache client instance.
	MemcacheClient *memcache.Client
}
