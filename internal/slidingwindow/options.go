package slidingwindow

import (
	"time"

	"learn.calllimiter/types"
)

// RegressionPolicy decides what happens when a timestamp is earlier than the newest admission.
type RegressionPolicy int

const (
	// RejectOnRegression rejects the attempt outright.
	RejectOnRegression RegressionPolicy = iota
	// ClampOnRegression evaluates the attempt as if it happened at the newest admission.
	ClampOnRegression
)

func (p RegressionPolicy) String() string {
	if p == ClampOnRegression {
		return "clamp"
	}
	return "reject"
}

// Option configures a CallLimiter.
type Option func(*CallLimiter)

// WithClock sets the clock used by Call.
func WithClock(nowFunc func() time.Time) Option {
	return func(l *CallLimiter) {
		if nowFunc != nil {
			l.nowFunc = nowFunc
		}
	}
}

// WithForwarder sets the operation invoked for every admitted attempt.
func WithForwarder(forward types.ForwardFunc) Option {
	return func(l *CallLimiter) {
		if forward != nil {
			l.forward = forward
		}
	}
}

// WithResolution truncates timestamps to a multiple of d before they are compared or stored.
// time.Second makes calls within the same wall-clock second indistinguishable.
func WithResolution(d time.Duration) Option {
	return func(l *CallLimiter) {
		if d > 0 {
			l.resolution = d
		}
	}
}

// WithRegressionPolicy selects the clock regression policy.
func WithRegressionPolicy(p RegressionPolicy) Option {
	return func(l *CallLimiter) {
		l.policy = p
	}
}

// WithAuditCapacity bounds the retained accepted and rejected history. 0 keeps everything.
func WithAuditCapacity(n int) Option {
	return func(l *CallLimiter) {
		l.auditCapacity = n
	}
}

// WithSinks adds observers that receive every decision.
func WithSinks(sinks ...types.AuditSink) Option {
	return func(l *CallLimiter) {
		for _, s := range sinks {
			if s != nil {
				l.sinks = append(l.sinks, s)
			}
		}
	}
}

// WithSinkTimeout bounds how long each sink may take to record one decision.
func WithSinkTimeout(d time.Duration) Option {
	return func(l *CallLimiter) {
		if d > 0 {
			l.sinkTimeout = d
		}
	}
}
