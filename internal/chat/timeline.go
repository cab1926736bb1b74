package chat

import (
	"sync"

	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// Timeline is the ordered, append-only sequence of messages of one session.
// A single owner appends; any goroutine may read.
type Timeline struct {
	entries []protocol.Message
	mu      sync.RWMutex
}

// NewTimeline creates an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append adds messages in the given order and returns the new length.
func (t *Timeline) Append(msgs ...protocol.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, msgs...)
	return len(t.entries)
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of every entry.
func (t *Timeline) Snapshot() []protocol.Message {
	return t.Since(0)
}

// Since returns a copy of the entries at index n and later.
func (t *Timeline) Since(n int) []protocol.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.entries) {
		return nil
	}
	out := make([]protocol.Message, len(t.entries)-n)
	copy(out, t.entries[n:])
	return out
}
