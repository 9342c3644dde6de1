package surface

import "sync"

// entry pairs one surface's authoritative state with its live subscribers.
// All mutation, broadcast and replay on a surface happens under mu, so
// subscribers never observe a partially applied update and a replay is always
// built from the same snapshot the next broadcast follows.
type entry struct {
	mu     sync.Mutex
	state  *State
	subs   map[Subscriber]struct{}
	closed bool
}

func newEntry(st *State) *entry {
	return &entry{state: st, subs: make(map[Subscriber]struct{})}
}

// store is the authoritative map of surface id to entry. Its lock only guards
// the map itself; per-surface work takes the entry lock, so operations on
// distinct surfaces run concurrently.
type store struct {
	mu       sync.RWMutex
	surfaces map[string]*entry
}

func newStoreMap() *store {
	return &store{surfaces: make(map[string]*entry)}
}

// put inserts an entry, returning false if the id is already taken.
func (s *store) put(id string, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.surfaces[id]; exists {
		return false
	}
	s.surfaces[id] = e
	return true
}

func (s *store) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.surfaces[id]
	return e, ok
}

func (s *store) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.surfaces, id)
}

func (s *store) all() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.surfaces))
	for _, e := range s.surfaces {
		out = append(out, e)
	}
	return out
}
