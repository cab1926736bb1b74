package session

import "github.com/pkg/errors"

var (
	// ErrSessionActive is returned when joining a (room, username) pair
	// whose session has not ended.
	ErrSessionActive = errors.New("session already active")

	// ErrInvalidJoin is returned when room or username is blank.
	ErrInvalidJoin = errors.New("room and username are required")

	// ErrSessionLeft is returned by operations on a session after Leave.
	ErrSessionLeft = errors.New("session has been left")
)
