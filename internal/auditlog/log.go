// Package auditlog keeps the accepted and rejected call history of a limiter.
package auditlog

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"learn.calllimiter/types"
)

// Log stores admitted and rejected timestamps in call order.
// With a positive capacity only the newest entries of each sequence are retained,
// while Totals keeps counting every appended event.
type Log struct {
	capacity int

	mu            sync.RWMutex
	accepted      deque.Deque[time.Time]
	rejected      deque.Deque[time.Time]
	acceptedTotal uint64
	rejectedTotal uint64
}

// New creates a Log. A capacity of 0 or less keeps the full history.
func New(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{capacity: capacity}
}

// Append records ev in the sequence matching its decision.
func (l *Log) Append(ev types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Decision == types.Admitted {
		l.acceptedTotal++
		push(&l.accepted, ev.Timestamp, l.capacity)
		return
	}
	l.rejectedTotal++
	push(&l.rejected, ev.Timestamp, l.capacity)
}

// Accepted returns a copy of the retained admitted timestamps.
func (l *Log) Accepted() []time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return snapshot(&l.accepted)
}

// Rejected returns a copy of the retained rejected timestamps.
func (l *Log) Rejected() []time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return snapshot(&l.rejected)
}

// Totals returns the number of admitted and rejected events ever appended.
func (l *Log) Totals() (accepted, rejected uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acceptedTotal, l.rejectedTotal
}

// Snapshot reads totals and the newest maxEntries timestamps of each sequence under one lock.
// A negative maxEntries copies everything retained.
func (l *Log) Snapshot(maxEntries int) types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return types.Snapshot{
		Accepted:      tail(&l.accepted, maxEntries),
		Rejected:      tail(&l.rejected, maxEntries),
		AcceptedTotal: l.acceptedTotal,
		RejectedTotal: l.rejectedTotal,
	}
}

// Capacity returns the retention bound, 0 meaning unbounded.
func (l *Log) Capacity() int {
	return l.capacity
}

func push(q *deque.Deque[time.Time], ts time.Time, capacity int) {
	q.PushBack(ts)
	if capacity > 0 && q.Len() > capacity {
		q.PopFront()
	}
}

func snapshot(q *deque.Deque[time.Time]) []time.Time {
	return tail(q, -1)
}

func tail(q *deque.Deque[time.Time], n int) []time.Time {
	start := 0
	if n >= 0 && q.Len() > n {
		start = q.Len() - n
	}
	out := make([]time.Time, q.Len()-start)
	for i := range out {
		out[i] = q.At(start + i)
	}
	return out
}
