package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of job events, typically an open SSE
// response. Delivery is lossy on purpose: a slow consumer drops events
// instead of stalling the executor's hook path. Flow control is
// credit-based; each delivered event spends one credit and a consumer
// out of credits is skipped until AddCredits.
type Subscriber struct {
	id string
	ch chan *Event

	credits atomic.Int64
	dropped atomic.Int64
	closed  atomic.Bool

	// filter, when non-nil, drops events it rejects before any
	// credit is spent.
	filter func(*Event) bool

	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewSubscriber creates a subscriber whose channel buffers bufferSize
// events and that starts with initialCredits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel events are delivered on. It is closed when the
// subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants n more deliveries.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the remaining delivery credits.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many events were not delivered because of the
// filter, exhausted credits, or a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs a predicate; events it rejects are dropped.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// Topics returns a copy of the topic names this subscriber is on.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// takeCredit spends one credit, reporting false when none remain.
func (s *Subscriber) takeCredit() bool {
	for {
		cur := s.credits.Load()
		if cur <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// send attempts delivery without blocking and reports whether the event
// reached the channel.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	if s.filter != nil && !s.filter(evt) {
		s.dropped.Add(1)
		return false
	}
	if !s.takeCredit() {
		s.dropped.Add(1)
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		// Full buffer: the credit was not consumed by a delivery.
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
