package dispatcher

import "sync"

// InFlight is the set of users that are queued or being processed. Each
// Dispatcher owns one; it is not shared between instances.
type InFlight struct {
	mu  sync.Mutex
	ids map[uint]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{ids: make(map[uint]struct{})}
}

// TryAdd inserts id and reports whether it was absent.
func (s *InFlight) TryAdd(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *InFlight) Remove(id uint) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *InFlight) Contains(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *InFlight) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
