package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"learn.calllimiter/types"
)

// Options configures the limiter collectors.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// RateLimitMetrics exposes Prometheus collectors for admission decisions and forwarded calls.
type RateLimitMetrics struct {
	Decisions       *prometheus.CounterVec
	ForwardErrors   *prometheus.CounterVec
	ForwardDuration *prometheus.HistogramVec
}

// NewRateLimitMetrics constructs the collectors and registers them with opts.Registerer
// (prometheus.DefaultRegisterer when nil). Already registered collectors are reused.
func NewRateLimitMetrics(opts Options) (*RateLimitMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "calllimiter"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: opts.Subsystem,
		Name:      "decisions_total",
		Help:      "Admission decisions partitioned by limiter, decision and reason.",
	}, []string{"limiter", "decision", "reason"}))
	if err != nil {
		return nil, err
	}

	forwardErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: opts.Subsystem,
		Name:      "forward_errors_total",
		Help:      "Admitted calls whose forward operation failed.",
	}, []string{"limiter"}))
	if err != nil {
		return nil, err
	}

	forwardDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: opts.Subsystem,
		Name:      "forward_duration_seconds",
		Help:      "Latency of forwarded calls in seconds.",
		Buckets:   buckets,
	}, []string{"limiter"}))
	if err != nil {
		return nil, err
	}

	return &RateLimitMetrics{
		Decisions:       decisions,
		ForwardErrors:   forwardErrors,
		ForwardDuration: forwardDuration,
	}, nil
}

// Record counts one decision. It satisfies types.AuditSink.
func (m *RateLimitMetrics) Record(_ context.Context, ev types.Event) error {
	if m == nil {
		return nil
	}
	m.Decisions.WithLabelValues(ev.Key, ev.Decision.String(), string(ev.Reason)).Inc()
	return nil
}

// InstrumentForward wraps next so its latency and failures are observed under key.
func (m *RateLimitMetrics) InstrumentForward(key string, next types.ForwardFunc) types.ForwardFunc {
	if m == nil {
		return next
	}
	return func(ctx context.Context) error {
		start := time.Now()
		err := next(ctx)
		m.ForwardDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
		if err != nil {
			m.ForwardErrors.WithLabelValues(key).Inc()
		}
		return err
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

var _ types.AuditSink = (*RateLimitMetrics)(nil)
