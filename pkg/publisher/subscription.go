package publisher

import (
	"context"
	"io"
	"sync"

	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Subscription receives the events of one transfer in publish order. When
// the subscriber falls behind, the oldest non-terminal events are dropped;
// the terminal event is never dropped.
type Subscription struct {
	sync.Mutex
	topic    *topic
	queue    []schema.ProgressEvent
	max      int
	notify   chan struct{}
	dropped  int
	terminal bool // terminal event has been delivered
	closed   bool
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newSubscription(t *topic, max int) *Subscription {
	return &Subscription{
		topic:  t,
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

// Close detaches the subscription from its transfer. Pending events are
// discarded and Next returns io.EOF.
func (s *Subscription) Close() error {
	s.topic.Lock()
	delete(s.topic.subs, s)
	s.topic.Unlock()

	s.Lock()
	defer s.Unlock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		s.signal()
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Next blocks until the next event is available. It returns io.EOF after
// the terminal event has been delivered or the subscription is closed, and
// the context error when the context is done first.
func (s *Subscription) Next(ctx context.Context) (schema.ProgressEvent, error) {
	for {
		s.Lock()
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			if e.Terminal() {
				s.terminal = true
				s.queue = nil
			}
			s.Unlock()
			return e, nil
		}
		if s.terminal || s.closed {
			s.Unlock()
			return schema.ProgressEvent{}, io.EOF
		}
		s.Unlock()

		select {
		case <-ctx.Done():
			return schema.ProgressEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Dropped returns the number of events discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() int {
	s.Lock()
	defer s.Unlock()
	return s.dropped
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// push queues an event without blocking the publisher
func (s *Subscription) push(e schema.ProgressEvent) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= s.max {
		for i := range s.queue {
			if !s.queue[i].Terminal() {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.dropped++
				break
			}
		}
	}
	s.queue = append(s.queue, e)
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
