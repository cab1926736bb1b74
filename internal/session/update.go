package session

import (
	"github.com/omochice/polyglot-chat/internal/channel"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// UpdateKind identifies what an Update reports.
type UpdateKind int

const (
	// UpdateMessages reports entries appended to the timeline.
	UpdateMessages UpdateKind = iota
	// UpdateState reports a channel state transition.
	UpdateState
	// UpdateError reports a display-level error.
	UpdateError
)

// String returns the string representation of UpdateKind
func (k UpdateKind) String() string {
	switch k {
	case UpdateMessages:
		return "messages"
	case UpdateState:
		return "state"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

// Update is delivered to the listener of a Session.
type Update struct {
	Kind     UpdateKind
	Messages []protocol.Message
	State    channel.State
	Err      error
}

// Listener receives session updates, one at a time and in order. It runs
// on the session's event loop, so a slow listener delays later updates.
// A Listener that wants to leave must call Session.Leave from another
// goroutine.
type Listener func(Update)
