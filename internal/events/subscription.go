package events

import (
	"context"
	"sync"
)

// Subscription is a mailbox scoped to one job.
type Subscription struct {
	id     uint64
	jobID  string
	notify chan struct{}

	mu     sync.Mutex
	queue  []Event
	closed bool
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string { return s.jobID }

// Next blocks until an event is queued, the subscription is closed and
// drained (ErrClosed), or ctx ends.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *Subscription) push(evt Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
