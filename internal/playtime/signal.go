package playtime

import "sync"

// GameSignal is the edge-triggered "game view loaded" flag reported by the
// embedded game host. Subscribers are notified only when the value changes.
type GameSignal struct {
	mu          sync.Mutex
	loaded      bool
	nextID      int
	subscribers []subscriber
}

type subscriber struct {
	id int
	fn func(loaded bool)
}

// NewGameSignal creates a signal in the unloaded state
func NewGameSignal() *GameSignal {
	return &GameSignal{}
}

// Loaded returns the current value
func (s *GameSignal) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Set updates the value and notifies subscribers on a transition.
// It reports whether the value changed.
func (s *GameSignal) Set(loaded bool) bool {
	s.mu.Lock()
	if s.loaded == loaded {
		s.mu.Unlock()
		return false
	}
	s.loaded = loaded
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	// Callbacks run without the lock so they may read the signal
	for _, sub := range subs {
		sub.fn(loaded)
	}
	return true
}

// Subscribe registers fn for transitions. The returned function removes the
// registration synchronously and is safe to call more than once.
func (s *GameSignal) Subscribe(fn func(loaded bool)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of registered callbacks
func (s *GameSignal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
