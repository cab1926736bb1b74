package devserver

import (
	"sync"
	"time"
)

type record struct {
	Username  string
	Room      string
	Content   string
	Timestamp time.Time
}

type storedFile struct {
	name string
	data []byte
}

// store keeps chat history and uploaded files in memory.
type store struct {
	mu      sync.RWMutex
	history map[string][]record
	files   map[string]storedFile
}

func newStore() *store {
	return &store{
		history: make(map[string][]record),
		files:   make(map[string]storedFile),
	}
}

func (s *store) appendRecord(r record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[r.Room] = append(s.history[r.Room], r)
}

func (s *store) records(room string) []record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record, len(s.history[room]))
	copy(out, s.history[room])
	return out
}

func (s *store) reset(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, room)
}

func (s *store) putFile(id string, f storedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = f
}

func (s *store) file(id string) (storedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}
