package auditredis

import (
	"context"
	"testing"
	"time"

	"learn.calllimiter/internal/testharness/redistest"
	"learn.calllimiter/types"
)

func TestSinkRedis_Integration(t *testing.T) {
	client := redistest.SetupRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	prefix := "test_audit_integration"
	redistest.CleanupRedisKeys(t, client, prefix)
	defer redistest.CleanupRedisKeys(t, client, prefix)

	sink := NewSink(client, prefix, 3, time.Minute)
	base := time.Now().Truncate(time.Millisecond)

	// Out-of-order delivery still reads back in time order.
	for _, seq := range []uint64{2, 1, 4, 3, 5} {
		ev := types.Event{Seq: seq, Decision: types.Admitted, Timestamp: base.Add(time.Duration(seq) * time.Millisecond)}
		if err := sink.Record(ctx, ev); err != nil {
			t.Fatalf("Record seq %d: %v", seq, err)
		}
	}
	// A restarted process numbers from 1 again but its events are newer.
	for _, seq := range []uint64{1, 2} {
		ev := types.Event{Seq: seq, Decision: types.Admitted, Timestamp: base.Add(time.Duration(seq+5) * time.Millisecond)}
		if err := sink.Record(ctx, ev); err != nil {
			t.Fatalf("Record restarted seq %d: %v", seq, err)
		}
	}

	n, err := sink.Len(ctx, types.Admitted)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Expected capacity to keep 3 events, got %d", n)
	}

	stamps, err := sink.Timestamps(ctx, types.Admitted)
	if err != nil {
		t.Fatalf("Timestamps failed: %v", err)
	}
	for i, ts := range stamps {
		if want := base.Add(time.Duration(i+5) * time.Millisecond); !ts.Equal(want) {
			t.Fatalf("Timestamps[%d] = %v, want %v", i, ts, want)
		}
	}
}
