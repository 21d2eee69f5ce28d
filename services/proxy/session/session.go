// Package session implements ReportSession: the per-producer lifecycle
// state holder that owns a master delta queue and one clone per attached
// consumer.
package session

import (
	"sync"

	"github.com/deltaproxy/deltaproxy/services/proxy/queue"
)

// Session is a single producer's live report state: whether that producer
// is still attached, whether any consumer has ever attached to it, its
// master queue, and one clone queue per currently-attached consumer.
//
// # Description
//
// A producer rotation (a new producer registering under a name already in
// use) does not mutate an existing Session — it creates a brand new one,
// which the registry installs in place of the old. The old Session is
// never told it has been superseded; "current" is a property the registry
// alone tracks (Registry.IsCurrent), matching event LC+'s rule of "no
// other action" beyond the registry's own bookkeeping. A Session only
// tracks the two booleans and queue set that its own three guard
// predicates (ShouldDropAfterProducerGone, ShouldDropAfterConsumerGone,
// ShouldDropAfterTimeout) need.
//
// # Thread Safety
//
// All exported methods lock an internal mutex; callers never need to
// coordinate externally.
type Session struct {
	mu sync.Mutex

	reportID       string
	producerAlive  bool
	hasHadConsumer bool
	master         *queue.Queue
	consumers      map[int]*queue.Queue
	nextConsumerID int
}

// New creates a Session for the producer identified by reportID, with no
// consumer attached yet.
func New(reportID string) *Session {
	return &Session{
		reportID:      reportID,
		producerAlive: true,
		master:        queue.New(),
		consumers:     make(map[int]*queue.Queue),
	}
}

// ReportID returns the identifier assigned when this session's producer
// sent its new_report message. Immutable for the life of the session.
func (s *Session) ReportID() string {
	return s.reportID
}

// ProducerAlive reports whether this session's producer is still attached.
func (s *Session) ProducerAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producerAlive
}

// HasHadConsumer reports whether any consumer has ever attached to this
// session.
func (s *Session) HasHadConsumer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasHadConsumer
}

// ConsumerCount reports how many consumers are currently attached.
func (s *Session) ConsumerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumers)
}

// Enqueue appends deltas to the master queue and to every attached
// consumer's clone, in order.
func (s *Session) Enqueue(deltas []queue.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deltas {
		s.master.Append(d)
		for _, c := range s.consumers {
			c.Append(d)
		}
	}
}

// AttachConsumer implements event CC+: marks has_had_consumer true and
// adds a clone of the master queue, pre-populated with everything
// buffered so far, to the consumer set. Returns the clone and an id used
// later to detach it.
func (s *Session) AttachConsumer() (id int, q *queue.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasHadConsumer = true
	id = s.nextConsumerID
	s.nextConsumerID++
	q = s.master.Clone()
	s.consumers[id] = q
	return id, q
}

// DetachConsumer implements the queue-removal half of event CC-.
// ShouldDropAfterConsumerGone must be consulted afterward to decide
// whether the session itself should be deregistered.
func (s *Session) DetachConsumer(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumers, id)
}

// MarkProducerGone implements the flag-setting half of event LC-.
// ShouldDropAfterProducerGone must be consulted afterward to decide
// whether the session itself should be deregistered.
func (s *Session) MarkProducerGone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producerAlive = false
}

// ShouldDropAfterProducerGone implements event LC-'s deregistration
// guard: a departing producer drops its session only if some consumer
// had already attached and none remain. A session no consumer has ever
// visited survives a producer departure — it is reclaimed only by the
// startup timeout (event T), giving a slow-to-connect consumer a window
// to still find it.
func (s *Session) ShouldDropAfterProducerGone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasHadConsumer && len(s.consumers) == 0
}

// ShouldDropAfterConsumerGone implements event CC-'s deregistration
// guard: the last consumer leaving drops the session only if its
// producer has also already gone.
func (s *Session) ShouldDropAfterConsumerGone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumers) == 0 && !s.producerAlive
}

// ShouldDropAfterTimeout implements event T's deregistration guard: a
// session that has never had a consumer attach is abandoned.
func (s *Session) ShouldDropAfterTimeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasHadConsumer
}
