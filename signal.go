package settings

import "sync"

// Subscription identifies a connected handler. The zero value is never issued.
type Subscription uint64

// PropertyChange is emitted when a property of a setting changes.
type PropertyChange struct {
	Key      string
	Property string
}

// ContainersChange is emitted when the container list of a stack changes.
// Container is nil when the change was a removal or a full reload.
type ContainersChange struct {
	Index     int
	Container Container
}

// Signal dispatches values to connected handlers synchronously, in the order
// they were connected.
type Signal[T any] struct {
	mu       sync.Mutex
	next     Subscription
	handlers []signalHandler[T]
}

type signalHandler[T any] struct {
	id Subscription
	fn func(T)
}

// Connect registers fn and returns a handle for Disconnect.
func (s *Signal[T]) Connect(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.handlers = append(s.handlers, signalHandler[T]{id: s.next, fn: fn})
	return s.next
}

// Disconnect removes the handler for sub. Unknown handles are ignored.
func (s *Signal[T]) Disconnect(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handlers {
		if h.id == sub {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Len reports the number of connected handlers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Emit calls every handler connected at the time of the call.
func (s *Signal[T]) Emit(value T) {
	s.mu.Lock()
	handlers := append([]signalHandler[T](nil), s.handlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		if h.fn != nil {
			h.fn(value)
		}
	}
}
