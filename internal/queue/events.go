package queue

import "sync"

// EventType classifies a store event.
type EventType int

const (
	// EventAdded indicates a new entry was queued.
	EventAdded EventType = iota
	// EventUpdated indicates an entry's status or counters changed.
	EventUpdated
	// EventDeleted indicates an entry was removed (synced or discarded).
	EventDeleted
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is published whenever the queue's contents change, so the UI can
// refresh its view without polling. ID is empty for bulk operations
// (Clear, ResetStale).
type Event struct {
	Type EventType
	ID   string
}

// Subscribe registers a listener for store events. The returned channel is
// buffered; events are dropped for slow consumers rather than blocking
// store mutations. Call Unsubscribe when done.
func (s *Store) Subscribe() <-chan Event {
	return s.subs.add()
}

// Unsubscribe removes a listener previously returned by Subscribe and
// closes its channel.
func (s *Store) Unsubscribe(ch <-chan Event) {
	s.subs.remove(ch)
}

type subscribers struct {
	mu     sync.Mutex
	chans  map[<-chan Event]chan Event
	closed bool
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[<-chan Event]chan Event)}
}

func (s *subscribers) add() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 16)
	if s.closed {
		close(ch)
		return ch
	}
	s.chans[ch] = ch
	return ch
}

func (s *subscribers) remove(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sender, ok := s.chans[ch]; ok {
		delete(s.chans, ch)
		close(sender)
	}
}

func (s *subscribers) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for key, ch := range s.chans {
		delete(s.chans, key)
		close(ch)
	}
}
