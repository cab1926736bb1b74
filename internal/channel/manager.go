// Package channel manages the live bidirectional channel of a chat session.
//
// A Manager owns at most one channel handle at a time. It dials the channel,
// sends the handshake frame once the channel opens, decodes inbound frames
// into timeline messages, and reports lifecycle transitions to the handler
// registered with Open. Handlers are detached before a handle is replaced or
// closed, so a stale handle never delivers events.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/polyglot-chat/internal/chat"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// State is the lifecycle state of the channel.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateErrored
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventType identifies what an Event reports.
type EventType int

const (
	EventOpened EventType = iota
	EventMessage
	EventError
)

// Event is emitted by the Manager for the handler of the current handle.
type Event struct {
	Type    EventType
	State   State
	Message protocol.Message
	Err     error
}

// Handler receives channel events. It is called from the Manager's
// goroutines and must not block or call back into the Manager.
type Handler func(Event)

// Dialer opens the transport of (room, username).
type Dialer interface {
	Dial(ctx context.Context, room, username string) (chat.Conn, error)
}

// Manager owns the live channel of one session.
type Manager struct {
	dialer       Dialer
	logger       zerolog.Logger
	sendBuffer   int
	writeTimeout time.Duration

	mu    sync.Mutex
	state State
	lang  string
	cur   *handle
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSendBuffer sets how many outbound frames may be queued before new
// ones are dropped.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// WithWriteTimeout bounds each outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.writeTimeout = d
	}
}

// NewManager creates a Manager in StateClosed.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:       dialer,
		logger:       log.Logger.With().Str("component", "channel").Logger(),
		sendBuffer:   64,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Language returns the preferred language the manager will announce.
func (m *Manager) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lang
}

// Open replaces any existing channel with a new one for (room, username).
// The previous handle is detached and closed before the new one is created.
// Open does not block; the outcome is reported to h.
func (m *Manager) Open(room, username, lang string, h Handler) {
	m.mu.Lock()
	old := m.cur
	m.cur = nil
	if old != nil && m.state != StateErrored {
		m.state = StateClosing
	}
	m.mu.Unlock()
	if old != nil {
		m.closeHandle(old)
	}

	hd := newHandle(room, username, h, m.sendBuffer)

	m.mu.Lock()
	m.cur = hd
	m.state = StateConnecting
	m.lang = lang
	m.mu.Unlock()

	m.logger.Debug().Str("room", room).Str("username", username).Msg("opening channel")
	go m.connect(hd)
}

// Send queues a text frame. Frames are accepted only while the channel is
// open; otherwise they are dropped and Send returns false.
func (m *Manager) Send(content string) bool {
	data, err := protocol.EncodeText(content)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to encode text frame")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		m.logger.Debug().Str("state", m.state.String()).Msg("dropping send on channel that is not open")
		return false
	}
	return m.enqueueLocked(data)
}

// SetLanguage records lang as the preferred language. While the channel is
// open an update_language frame is sent on it and true is returned; in any
// other state lang becomes the handshake of the next open.
func (m *Manager) SetLanguage(lang string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lang = lang
	if m.state != StateOpen {
		return false
	}

	data, err := protocol.EncodeLanguageUpdate(lang)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to encode language update")
		return false
	}
	return m.enqueueLocked(data)
}

// Close initiates a clean close of the current channel. The handler is
// detached first, so no events are delivered once Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	hd := m.cur
	m.mu.Unlock()
	if hd == nil {
		return
	}
	m.closeHandle(hd)
}

func (m *Manager) closeHandle(hd *handle) {
	m.mu.Lock()
	hd.closing = true
	if m.cur == hd && (m.state == StateOpen || m.state == StateConnecting) {
		m.state = StateClosing
	}
	conn := hd.conn
	m.mu.Unlock()

	hd.detach()
	hd.cancel()
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("channel close returned error")
		}
	}
	<-hd.done

	m.mu.Lock()
	if m.cur == hd {
		m.cur = nil
		if m.state != StateErrored {
			m.state = StateClosed
		}
	}
	m.mu.Unlock()
	m.logger.Debug().Str("room", hd.room).Str("username", hd.username).Msg("channel closed")
}

func (m *Manager) enqueueLocked(data []byte) bool {
	if m.cur == nil {
		return false
	}
	select {
	case m.cur.out <- data:
		return true
	default:
		m.logger.Warn().Msg("outbound queue full, dropping frame")
		return false
	}
}

func (m *Manager) connect(hd *handle) {
	defer close(hd.done)

	conn, err := m.dialer.Dial(hd.ctx, hd.room, hd.username)
	if err != nil {
		m.mu.Lock()
		current := m.cur == hd && !hd.closing
		if current {
			m.state = StateErrored
		}
		m.mu.Unlock()
		if !current {
			return
		}
		m.logger.Error().Err(err).Str("room", hd.room).Str("username", hd.username).Msg("channel connect failed")
		hd.deliver(Event{Type: EventError, State: StateErrored, Err: &ConnectError{Room: hd.room, Username: hd.username, Err: err}})
		return
	}

	m.mu.Lock()
	if m.cur != hd || hd.closing {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	hd.conn = conn
	handshake, err := protocol.EncodeHandshake(m.lang)
	if err == nil {
		hd.out <- handshake
	}
	m.state = StateOpen
	m.mu.Unlock()

	m.logger.Info().Str("room", hd.room).Str("username", hd.username).Str("remote", conn.RemoteAddr()).Msg("channel open")
	hd.deliver(Event{Type: EventOpened, State: StateOpen})

	go m.writeLoop(hd, conn)
	m.readLoop(hd, conn)
}

func (m *Manager) writeLoop(hd *handle, conn chat.Conn) {
	for {
		select {
		case <-hd.ctx.Done():
			return
		case data := <-hd.out:
			ctx, cancel := context.WithTimeout(hd.ctx, m.writeTimeout)
			err := conn.Write(ctx, data)
			cancel()
			if err != nil {
				m.logger.Warn().Err(err).Msg("failed to write frame")
			}
		}
	}
}

func (m *Manager) readLoop(hd *handle, conn chat.Conn) {
	for {
		data, err := conn.Read(hd.ctx)
		if err != nil {
			m.finish(hd, conn, err)
			return
		}

		msg, err := protocol.Classify(data)
		if err != nil {
			m.logger.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		hd.deliver(Event{Type: EventMessage, State: StateOpen, Message: msg})
	}
}

func (m *Manager) finish(hd *handle, conn chat.Conn, err error) {
	m.mu.Lock()
	current := m.cur == hd
	clean := hd.closing
	if current {
		if clean {
			m.state = StateClosed
		} else {
			m.state = StateErrored
		}
	}
	m.mu.Unlock()
	hd.cancel()

	if clean || !current {
		return
	}
	_ = conn.Close()

	closeErr := newUnexpectedCloseError(err)
	m.logger.Error().Int("code", closeErr.Code).Str("reason", closeErr.Reason).Msg("channel closed unexpectedly")
	hd.deliver(Event{Type: EventError, State: StateErrored, Err: closeErr})
}

// handle is one physical channel instance.
type handle struct {
	room     string
	username string
	ctx      context.Context
	cancel   context.CancelFunc
	out      chan []byte
	done     chan struct{}

	// guarded by Manager.mu
	conn    chat.Conn
	closing bool

	deliverMu sync.Mutex
	handler   Handler
}

func newHandle(room, username string, h Handler, buffer int) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{
		room:     room,
		username: username,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan []byte, buffer),
		done:     make(chan struct{}),
		handler:  h,
	}
}

func (h *handle) deliver(ev Event) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.handler != nil {
		h.handler(ev)
	}
}

// detach waits for an in-flight delivery and prevents further ones.
func (h *handle) detach() {
	h.deliverMu.Lock()
	h.handler = nil
	h.deliverMu.Unlock()
}
