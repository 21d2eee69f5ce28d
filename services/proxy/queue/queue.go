// Package queue implements DeltaQueue: an ordered, append-only buffer of
// opaque deltas with a drainable cursor, cloneable for fan-out to multiple
// consumers of the same report.
package queue

import (
	"encoding/json"
	"sync"
)

// Delta is an opaque, ordered unit of document mutation emitted by a
// producer. The proxy never parses or merges deltas; it only preserves
// their order relative to a single producer.
type Delta = json.RawMessage

// Queue is a concurrency-safe ordered sequence of deltas.
//
// # Description
//
// Queue implements DeltaQueue from the report-proxy specification:
// append() never fails, drain() atomically empties the buffer in insertion
// order, and clone() snapshots the currently buffered deltas into a new,
// independent Queue.
//
// # Thread Safety
//
// Safe for concurrent Append/Drain/Clone from multiple goroutines. Append
// and Clone are individually atomic with respect to each other: a Clone
// always observes either the full effect of a concurrent Append or none of
// it, never a partial one, preserving the no-reordering/no-gaps invariant
// required when a new consumer attaches mid-stream.
type Queue struct {
	mu      sync.Mutex
	buf     []Delta
	drained int // count of deltas removed by Drain, for diagnostics only
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Append adds delta at the tail of the queue. Append never fails.
func (q *Queue) Append(d Delta) {
	q.mu.Lock()
	q.buf = append(q.buf, d)
	q.mu.Unlock()
}

// Drain atomically removes and returns all currently buffered deltas in
// insertion order. A concurrent Append that happens strictly after Drain
// returns is not included; one racing with Drain may or may not be
// included, per the relaxed drain semantics in the specification.
func (q *Queue) Drain() []Delta {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	q.drained += len(out)
	return out
}

// Clone returns a new Queue pre-populated with the deltas currently
// buffered in q, and thereafter independent of it: subsequent appends to q
// do not appear in the clone, and subsequent appends to the clone do not
// appear in q.
func (q *Queue) Clone() *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	cloned := make([]Delta, len(q.buf))
	copy(cloned, q.buf)
	return &Queue{buf: cloned}
}

// Len reports the number of deltas currently buffered. Intended for
// metrics and tests, not for control flow (the count is stale the instant
// the lock is released).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
