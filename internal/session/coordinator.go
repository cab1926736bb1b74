// Package session joins rooms and keeps each participant's timeline
// consistent with the room's history and live channel.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/polyglot-chat/internal/attachment"
	"github.com/omochice/polyglot-chat/internal/channel"
	"github.com/omochice/polyglot-chat/internal/history"
	"github.com/omochice/polyglot-chat/internal/language"
)

// Coordinator creates sessions and tracks the live one of every
// (room, username) pair.
type Coordinator struct {
	dialer    channel.Dialer
	loader    history.Loader
	submitter attachment.Submitter
	logger    zerolog.Logger
	chanOpts  []channel.Option

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

type sessionKey struct {
	room     string
	username string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithChannelOptions passes options to every channel manager created.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(c *Coordinator) {
		c.chanOpts = append(c.chanOpts, opts...)
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(dialer channel.Dialer, loader history.Loader, submitter attachment.Submitter, opts ...Option) *Coordinator {
	c := &Coordinator{
		dialer:    dialer,
		loader:    loader,
		submitter: submitter,
		logger:    log.Logger,
		sessions:  make(map[sessionKey]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join starts a session in room as username. The history fetch and the
// channel connect run concurrently; listener observes the outcome.
// An empty lang selects language.Default.
func (c *Coordinator) Join(ctx context.Context, room, username, lang string, listener Listener) (*Session, error) {
	room = strings.TrimSpace(room)
	username = strings.TrimSpace(username)
	if room == "" || username == "" {
		return nil, ErrInvalidJoin
	}
	if lang = strings.TrimSpace(lang); lang == "" {
		lang = language.Default
	}

	key := sessionKey{room: room, username: username}

	c.mu.Lock()
	prev, ok := c.sessions[key]
	if ok && !prev.Terminal() {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}

	chanOpts := append([]channel.Option{
		channel.WithLogger(c.logger.With().Str("component", "channel").Logger()),
	}, c.chanOpts...)
	manager := channel.NewManager(c.dialer, chanOpts...)

	s := newSession(ctx, room, username, manager, c.loader, c.submitter, listener,
		c.logger.With().Str("component", "session").Logger())
	c.sessions[key] = s
	c.mu.Unlock()

	if prev != nil {
		prev.Leave()
	}

	s.logger.Info().Str("language", lang).Msg("joining room")
	s.start(lang)
	return s, nil
}

// Leave leaves and forgets the session of (room, username), if any.
func (c *Coordinator) Leave(room, username string) {
	key := sessionKey{room: strings.TrimSpace(room), username: strings.TrimSpace(username)}
	c.mu.Lock()
	s, ok := c.sessions[key]
	delete(c.sessions, key)
	c.mu.Unlock()
	if ok {
		s.Leave()
	}
}

// Close leaves every session.
func (c *Coordinator) Close() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[sessionKey]*Session)
	c.mu.Unlock()
	for _, s := range sessions {
		s.Leave()
	}
}
