// Package slidingwindow limits forwarded calls to a fixed number per trailing second.
//
// The decision for each attempt looks at a single anchor: the admission made limit
// positions before the current one. If that anchor is less than one second old the
// last limit admissions all happened inside the window and the attempt is rejected.
// Only the newest limit admissions are kept for this purpose; the complete accepted
// and rejected history lives in an audit log.
package slidingwindow

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"

	"learn.calllimiter/internal/auditlog"
	"learn.calllimiter/types"
)

// Window is the length of the trailing window.
const Window = time.Second

// DefaultSinkTimeout bounds each audit sink call unless WithSinkTimeout overrides it.
const DefaultSinkTimeout = 250 * time.Millisecond

// ErrInvalidLimit is returned when a limiter is constructed with a limit below 1.
var ErrInvalidLimit = errors.New("limit must be at least 1")

// CallLimiter admits at most limit calls in any trailing one-second window.
type CallLimiter struct {
	key           string
	limit         int
	resolution    time.Duration
	policy        RegressionPolicy
	auditCapacity int
	sinkTimeout   time.Duration
	nowFunc       func() time.Time
	forward       types.ForwardFunc
	sinks         []types.AuditSink

	mu     sync.Mutex
	recent deque.Deque[time.Time] // newest limit admissions, oldest first
	seq    uint64

	history *auditlog.Log
}

// NewLimiter creates a CallLimiter allowing limit calls per second.
// key labels the limiter in logs, metrics and audit sinks.
func NewLimiter(key string, limit int, opts ...Option) (*CallLimiter, error) {
	if limit < 1 {
		err := fmt.Errorf("limiter '%s': %w (got %d)", key, ErrInvalidLimit, limit)
		log.Error().Err(err).Str("limiter_type", "SlidingWindow").Str("limiter_key", key).Int("limit", limit).Msg("Limiter: Invalid configuration")
		return nil, err
	}

	l := &CallLimiter{
		key:         key,
		limit:       limit,
		sinkTimeout: DefaultSinkTimeout,
		nowFunc:     time.Now,
		forward:     noop,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.recent.SetMinCapacity(uint(bits.Len(uint(limit)))) // base capacity >= limit+1
	l.history = auditlog.New(l.auditCapacity)

	log.Info().Str("limiter_type", "SlidingWindow").Str("limiter_key", key).Int("limit", limit).
		Dur("resolution", l.resolution).Str("on_clock_regression", l.policy.String()).
		Int("audit_capacity", l.history.Capacity()).Int("sinks", len(l.sinks)).Msg("Limiter: Initialized")
	return l, nil
}

// Call attempts a call at the current time of the limiter's clock.
func (l *CallLimiter) Call(ctx context.Context) (types.Decision, error) {
	return l.Attempt(ctx, l.nowFunc())
}

// Attempt decides whether a call made at now is admitted, records the decision and,
// when admitted, invokes the forward operation. The returned error is the forward
// operation's error, unchanged. Rejections never return an error.
func (l *CallLimiter) Attempt(ctx context.Context, now time.Time) (types.Decision, error) {
	ev := l.decide(now)

	for _, sink := range l.sinks {
		if err := l.record(ctx, sink, ev); err != nil {
			log.Warn().Err(err).Str("limiter_type", "SlidingWindow").Str("limiter_key", l.key).Uint64("seq", ev.Seq).Msg("Limiter: Audit sink failed")
		}
	}

	if ev.Decision != types.Admitted {
		log.Trace().Str("limiter_type", "SlidingWindow").Str("limiter_key", l.key).Str("reason", string(ev.Reason)).Time("at", ev.Timestamp).Msg("Limiter: Call rejected")
		return types.Rejected, nil
	}

	if err := l.forward(ctx); err != nil {
		log.Debug().Err(err).Str("limiter_type", "SlidingWindow").Str("limiter_key", l.key).Uint64("seq", ev.Seq).Msg("Limiter: Forward failed")
		return types.Admitted, err
	}
	return types.Admitted, nil
}

func (l *CallLimiter) record(ctx context.Context, sink types.AuditSink, ev types.Event) error {
	sctx, cancel := context.WithTimeout(ctx, l.sinkTimeout)
	defer cancel()
	return sink.Record(sctx, ev)
}

// decide runs the admission check and records its outcome as one critical section.
func (l *CallLimiter) decide(now time.Time) types.Event {
	if l.resolution > 0 {
		now = now.Truncate(l.resolution)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev := types.Event{Key: l.key, Seq: l.seq, Timestamp: now}

	if l.recent.Len() > 0 {
		if newest := l.recent.Back(); now.Before(newest) {
			log.Warn().Str("limiter_type", "SlidingWindow").Str("limiter_key", l.key).Time("now", now).Time("newest", newest).
				Str("on_clock_regression", l.policy.String()).Msg("Limiter: Clock moved backwards")
			if l.policy != ClampOnRegression {
				ev.Decision, ev.Reason = types.Rejected, types.ReasonClockRegression
				l.history.Append(ev)
				return ev
			}
			now = newest
			ev.Timestamp = now
		}
	}

	if l.recent.Len() >= l.limit && now.Sub(l.recent.Front()) < Window {
		ev.Decision, ev.Reason = types.Rejected, types.ReasonWindowFull
		l.history.Append(ev)
		return ev
	}

	l.recent.PushBack(now)
	if l.recent.Len() > l.limit {
		l.recent.PopFront()
	}
	ev.Decision, ev.Reason = types.Admitted, types.ReasonWindowOpen
	l.history.Append(ev)
	return ev
}

// Accepted returns the admitted timestamps in call order.
func (l *CallLimiter) Accepted() []time.Time {
	return l.history.Accepted()
}

// Rejected returns the rejected timestamps in call order.
func (l *CallLimiter) Rejected() []time.Time {
	return l.history.Rejected()
}

// Totals returns how many calls were admitted and rejected over the limiter's lifetime.
func (l *CallLimiter) Totals() (accepted, rejected uint64) {
	return l.history.Totals()
}

// Snapshot returns totals and the newest maxEntries timestamps per decision as one consistent view.
func (l *CallLimiter) Snapshot(maxEntries int) types.Snapshot {
	return l.history.Snapshot(maxEntries)
}

func (l *CallLimiter) Key() string { return l.key }

func (l *CallLimiter) Limit() int { return l.limit }

func noop(context.Context) error { return nil }

var _ types.Limiter = (*CallLimiter)(nil)
