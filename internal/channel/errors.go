package channel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/omochice/polyglot-chat/internal/chat"
)

// ConnectError reports that the channel could not be established.
type ConnectError struct {
	Room     string
	Username string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connection error: could not join %s as %s: %v", e.Room, e.Username, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// UnexpectedCloseError reports a close that was not initiated locally.
type UnexpectedCloseError struct {
	Code   int
	Reason string
}

func (e *UnexpectedCloseError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	return fmt.Sprintf("channel closed unexpectedly. Code: %d, Reason: %s", e.Code, reason)
}

func newUnexpectedCloseError(err error) *UnexpectedCloseError {
	var closeErr *chat.CloseError
	if errors.As(err, &closeErr) {
		return &UnexpectedCloseError{Code: closeErr.Code, Reason: closeErr.Reason}
	}
	return &UnexpectedCloseError{Code: chat.CloseAbnormalClosure, Reason: err.Error()}
}
