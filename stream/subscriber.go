package stream

import (
	"sync"
)

// Subscriber receives events from topics it is subscribed to. Delivery
// never blocks the publisher: events that do not fit in the buffer are
// dropped.
type Subscriber struct {
	id string
	ch chan *Event

	topics map[string]struct{}
	mu     sync.RWMutex

	// filter is an optional predicate. If set, only events
	// matching the filter are delivered.
	filter func(*Event) bool

	// sendMu orders sends against Close.
	sendMu sync.RWMutex
	closed bool
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel. It is closed when the
// subscriber is removed.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// SetFilter sets an optional event filter predicate.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
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

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send attempts to deliver an event to the subscriber.
// Returns false if the event was filtered out or dropped.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()
	if filter != nil && !filter(evt) {
		return false
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
