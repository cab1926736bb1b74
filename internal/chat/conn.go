// Package chat provides the transport-agnostic pieces of a chat session:
// the connection abstraction and the append-only timeline.
package chat

import (
	"context"
	"fmt"
)

// WebSocket close codes the session core distinguishes.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseAbnormalClosure = 1006
	CloseInternalError   = 1011
)

// Conn abstracts one bidirectional message-oriented connection.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read reads a single message frame.
	// A peer close is reported as *CloseError.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close performs a normal closure of the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// CloseError describes how a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no reason provided"
	}
	return fmt.Sprintf("connection closed (code %d): %s", e.Code, reason)
}
