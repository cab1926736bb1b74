package session

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/polyglot-chat/internal/attachment"
	"github.com/omochice/polyglot-chat/internal/channel"
	"github.com/omochice/polyglot-chat/internal/chat"
	"github.com/omochice/polyglot-chat/internal/history"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// Session is one participant's live presence in a room.
//
// Channel events and the history result are funneled through an
// unbounded inbox and applied by a single event loop goroutine, which is
// the only writer of the timeline. Live messages that arrive before the
// history seed are held back and replayed after it.
type Session struct {
	id        string
	room      string
	username  string
	logger    zerolog.Logger
	manager   *channel.Manager
	loader    history.Loader
	submitter attachment.Submitter
	listener  Listener
	timeline  *chat.Timeline

	ctx    context.Context
	cancel context.CancelFunc

	inMu    sync.Mutex
	inbox   []any
	stopped bool
	notify  chan struct{}
	done    chan struct{}

	// applyMu orders timeline mutations against Leave.
	applyMu sync.Mutex
	left    bool
	// emitMu is held for each listener call.
	emitMu sync.Mutex

	errMu  sync.Mutex
	err    error
	failed bool

	leaveOnce sync.Once
	loopDone  chan struct{}

	// owned by the event loop
	seeded  bool
	pending []protocol.Message
}

type channelEvent struct {
	ev channel.Event
}

type historyEvent struct {
	msgs []protocol.Message
	err  error
}

func newSession(ctx context.Context, room, username string, manager *channel.Manager, loader history.Loader, submitter attachment.Submitter, listener Listener, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		id:        id,
		room:      room,
		username:  username,
		logger:    logger.With().Str("session_id", id).Str("room", room).Str("username", username).Logger(),
		manager:   manager,
		loader:    loader,
		submitter: submitter,
		listener:  listener,
		timeline:  chat.NewTimeline(),
		ctx:       sctx,
		cancel:    cancel,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
}

func (s *Session) start(lang string) {
	go s.loop()

	s.manager.Open(s.room, s.username, lang, func(ev channel.Event) {
		s.enqueue(channelEvent{ev: ev})
	})

	go func() {
		msgs, err := s.loader.Load(s.ctx, s.room)
		var fetchErr *history.FetchError
		if err != nil && !errors.As(err, &fetchErr) {
			err = &history.FetchError{Room: s.room, Err: err}
		}
		s.enqueue(historyEvent{msgs: msgs, err: err})
	}()
}

// ID returns the unique identifier of the session.
func (s *Session) ID() string { return s.id }

// Room returns the room of the session.
func (s *Session) Room() string { return s.room }

// Username returns the username of the session.
func (s *Session) Username() string { return s.username }

// Timeline returns the session's timeline.
func (s *Session) Timeline() *chat.Timeline { return s.timeline }

// State returns the channel state.
func (s *Session) State() channel.State { return s.manager.State() }

// Language returns the preferred language.
func (s *Session) Language() string { return s.manager.Language() }

// Err returns the most recent display-level error, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Send sends content over the channel. It does nothing and returns false
// unless the channel is open and content is not blank. The message is not
// added to the timeline; the backend's echo is.
func (s *Session) Send(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	if s.hasLeft() {
		return false
	}
	return s.manager.Send(content)
}

// ChangeLanguage switches the preferred language. While the channel is
// open the backend is told in place, otherwise the language is announced
// on the next open. Changing to the current language does nothing.
func (s *Session) ChangeLanguage(code string) {
	code = strings.TrimSpace(code)
	if code == "" || s.hasLeft() || code == s.manager.Language() {
		return
	}
	s.manager.SetLanguage(code)
	s.logger.Debug().Str("language", code).Msg("preferred language changed")
}

// Submit uploads an attachment for this session's room and username. The
// timeline only changes when the backend announces the attachment on
// the channel. Failures are returned as *attachment.UploadError.
func (s *Session) Submit(ctx context.Context, kind attachment.Kind, filename string, body io.Reader) (attachment.Receipt, error) {
	if s.hasLeft() {
		return attachment.Receipt{}, &attachment.UploadError{Kind: kind, Filename: filename, Err: ErrSessionLeft}
	}
	receipt, err := s.submitter.Submit(ctx, attachment.Upload{
		Kind:              kind,
		Room:              s.room,
		Username:          s.username,
		PreferredLanguage: s.Language(),
		Filename:          filename,
		Body:              body,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind.String()).Msg("upload failed")
		return attachment.Receipt{}, err
	}
	return receipt, nil
}

// Leave closes the channel cleanly and detaches every pending callback.
// Once Leave returns the timeline no longer changes and the listener is
// not called again. Leave waits for a listener call in progress, so a
// Listener must not call it synchronously. Leave is idempotent.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.applyMu.Lock()
		s.left = true
		s.applyMu.Unlock()

		// wait out an in-flight listener call
		s.emitMu.Lock()
		s.emitMu.Unlock()

		s.inMu.Lock()
		s.stopped = true
		s.inbox = nil
		s.inMu.Unlock()

		close(s.done)
		s.cancel()
		s.manager.Close()
		s.logger.Info().Msg("left room")
	})
}

// Done is closed when the session's event loop has exited.
func (s *Session) Done() <-chan struct{} { return s.loopDone }

// Terminal reports whether the session has ended, either by Leave or by
// an error.
func (s *Session) Terminal() bool {
	if s.hasLeft() {
		return true
	}
	s.errMu.Lock()
	failed := s.failed
	s.errMu.Unlock()
	return failed || s.manager.State() == channel.StateErrored
}

func (s *Session) hasLeft() bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.left
}

func (s *Session) enqueue(ev any) {
	s.inMu.Lock()
	if s.stopped {
		s.inMu.Unlock()
		return
	}
	s.inbox = append(s.inbox, ev)
	s.inMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) drain() []any {
	s.inMu.Lock()
	defer s.inMu.Unlock()
	evs := s.inbox
	s.inbox = nil
	return evs
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for _, ev := range s.drain() {
			select {
			case <-s.done:
				return
			default:
			}
			s.apply(ev)
		}
	}
}

func (s *Session) apply(ev any) {
	switch e := ev.(type) {
	case historyEvent:
		s.applyHistory(e)
	case channelEvent:
		s.applyChannel(e.ev)
	}
}

func (s *Session) applyHistory(e historyEvent) {
	if s.seeded {
		return
	}
	s.seeded = true

	if e.err != nil {
		s.pending = nil
		s.setErr(e.err, true)
		s.logger.Error().Err(e.err).Msg("history fetch failed")
		s.manager.Close()
		s.emit(Update{Kind: UpdateError, Err: e.err})
		s.emit(Update{Kind: UpdateState, State: s.manager.State()})
		return
	}

	batch := make([]protocol.Message, 0, len(e.msgs)+len(s.pending))
	batch = append(batch, e.msgs...)
	batch = append(batch, s.pending...)
	s.pending = nil
	s.logger.Debug().Int("history", len(e.msgs)).Int("replayed", len(batch)-len(e.msgs)).Msg("timeline seeded")
	s.appendMessages(batch)
}

func (s *Session) applyChannel(ev channel.Event) {
	switch ev.Type {
	case channel.EventOpened:
		s.emit(Update{Kind: UpdateState, State: ev.State})
	case channel.EventMessage:
		if s.failedHistory() {
			return
		}
		if !s.seeded {
			s.pending = append(s.pending, ev.Message)
			return
		}
		s.appendMessages([]protocol.Message{ev.Message})
	case channel.EventError:
		s.setErr(ev.Err, false)
		s.emit(Update{Kind: UpdateError, Err: ev.Err})
		s.emit(Update{Kind: UpdateState, State: ev.State})
	}
}

func (s *Session) appendMessages(msgs []protocol.Message) {
	if len(msgs) == 0 {
		return
	}
	s.applyMu.Lock()
	if s.left {
		s.applyMu.Unlock()
		return
	}
	s.timeline.Append(msgs...)
	s.applyMu.Unlock()
	s.emit(Update{Kind: UpdateMessages, Messages: msgs})
}

func (s *Session) emit(u Update) {
	if s.listener == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.hasLeft() {
		return
	}
	s.listener(u)
}

func (s *Session) setErr(err error, terminal bool) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.err = err
	if terminal {
		s.failed = true
	}
}

func (s *Session) failedHistory() bool {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.failed
}
