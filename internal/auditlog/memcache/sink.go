// Package auditmemcache keeps admitted and rejected counters in Memcache.
package auditmemcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/rs/zerolog/log"

	"learn.calllimiter/internal/memcacheiface"
	"learn.calllimiter/types"
)

// MaxRelativeTTL is the longest expiration memcache accepts as a relative number of seconds.
// Longer expirations are sent as an absolute Unix time.
const MaxRelativeTTL = 30 * 24 * time.Hour

type Sink struct {
	client    memcacheiface.Client
	keyPrefix string
	ttl       time.Duration
}

func NewSink(client memcacheiface.Client, keyPrefix string, ttl time.Duration) *Sink {
	log.Info().Str("sink_type", "Audit").Str("backend", "Memcache").Str("key_prefix", keyPrefix).Dur("ttl", ttl).Msg("Sink: Initialized")
	return &Sink{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Record increments the counter matching the event's decision.
func (s *Sink) Record(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	memcacheKey := s.Key(ev.Decision)

	// Add creates the counter with its expiry; Increment keeps the original TTL.
	item := &memcache.Item{
		Key:        memcacheKey,
		Value:      []byte("1"),
		Expiration: s.expiration(time.Now()),
	}
	err := s.client.Add(item)
	if err == nil {
		log.Trace().Str("backend", "Memcache").Str("key", memcacheKey).Uint64("count", 1).Msg("Sink: Counter created")
		return nil
	}

	if errors.Is(err, memcache.ErrNotStored) {
		count, incErr := s.client.Increment(memcacheKey, 1)
		if incErr != nil {
			return fmt.Errorf("memcache increment failed: %w", incErr)
		}
		log.Trace().Str("backend", "Memcache").Str("key", memcacheKey).Uint64("count", count).Msg("Sink: Counter incremented")
		return nil
	}

	return fmt.Errorf("memcache Add operation failed: %w", err)
}

// Counts reads both counters. Missing counters read as zero.
func (s *Sink) Counts() (accepted, rejected uint64, err error) {
	if accepted, err = s.read(s.Key(types.Admitted)); err != nil {
		return 0, 0, err
	}
	if rejected, err = s.read(s.Key(types.Rejected)); err != nil {
		return 0, 0, err
	}
	return accepted, rejected, nil
}

func (s *Sink) Key(decision types.Decision) string {
	if decision == types.Admitted {
		return s.keyPrefix + ":accepted"
	}
	return s.keyPrefix + ":rejected"
}

func (s *Sink) read(key string) (uint64, error) {
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memcache get failed: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(item.Value)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memcache counter %s is not a number: %w", key, err)
	}
	return n, nil
}

func (s *Sink) expiration(now time.Time) int32 {
	if s.ttl <= 0 {
		return 0
	}
	if s.ttl > MaxRelativeTTL {
		abs := now.Add(s.ttl).Unix()
		if abs > math.MaxInt32 {
			return math.MaxInt32
		}
		return int32(abs)
	}
	secs := int32(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

var _ types.AuditSink = (*Sink)(nil)
