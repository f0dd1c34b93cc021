// Package auditredis exports limiter decisions to Redis sorted sets.
package auditredis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"learn.calllimiter/types"
)

// Sink writes every event into "<prefix>:accepted" or "<prefix>:rejected".
// Events are scored by timestamp in milliseconds. Members are "<unix nanos>:<seq>", zero padded,
// so equal scores order by nanosecond and then by sequence number. Sequence numbers restart with
// the process, timestamps do not.
type Sink struct {
	client   *redis.Client
	prefix   string
	capacity int64
	ttl      time.Duration
	script   *redis.Script
}

// NewSink creates a Redis audit sink. capacity caps each set (0 for no cap), ttl expires idle sets (0 for none).
func NewSink(client *redis.Client, prefix string, capacity int64, ttl time.Duration) *Sink {
	log.Info().Str("sink_type", "Audit").Str("backend", "Redis").Str("key_prefix", prefix).Int64("capacity", capacity).Dur("ttl", ttl).Msg("Sink: Initialized")
	return &Sink{
		client:   client,
		prefix:   prefix,
		capacity: capacity,
		ttl:      ttl,
		script:   recordScript,
	}
}

// Record appends ev to the set matching its decision.
func (s *Sink) Record(ctx context.Context, ev types.Event) error {
	redisKey := s.Key(ev.Decision)
	member := Member(ev)

	result, err := s.script.Run(ctx, s.client, []string{redisKey}, ev.Timestamp.UnixMilli(), member, s.capacity, s.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("redis audit script error for key '%s': %w", redisKey, err)
	}

	size, ok := result.(int64)
	if !ok {
		return fmt.Errorf("unexpected script result type for key '%s': %T", redisKey, result)
	}
	log.Trace().Str("backend", "Redis").Str("redis_key", redisKey).Uint64("seq", ev.Seq).Int64("size", size).Msg("Sink: Event exported")
	return nil
}

// Len returns the number of exported events for decision.
func (s *Sink) Len(ctx context.Context, decision types.Decision) (int64, error) {
	n, err := s.client.ZCard(ctx, s.Key(decision)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return n, nil
}

// Timestamps returns the exported timestamps for decision, oldest first.
func (s *Sink) Timestamps(ctx context.Context, decision types.Decision) ([]time.Time, error) {
	members, err := s.client.ZRange(ctx, s.Key(decision), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	out := make([]time.Time, 0, len(members))
	for _, m := range members {
		nanos, _, found := strings.Cut(m, ":")
		if !found {
			return nil, fmt.Errorf("malformed audit member %q", m)
		}
		ns, err := strconv.ParseInt(nanos, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, time.Unix(0, ns))
	}
	return out, nil
}

// Member returns the sorted set member stored for ev.
func Member(ev types.Event) string {
	return fmt.Sprintf("%019d:%020d", ev.Timestamp.UnixNano(), ev.Seq)
}

// Key returns the Redis key holding events for decision.
func (s *Sink) Key(decision types.Decision) string {
	if decision == types.Admitted {
		return s.prefix + ":accepted"
	}
	return s.prefix + ":rejected"
}

var _ types.AuditSink = (*Sink)(nil)
