package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/polyglot-chat/internal/channel"
	"github.com/omochice/polyglot-chat/internal/chat"
	"github.com/omochice/polyglot-chat/internal/chat/chattest"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// recorder collects events delivered to a handler.
type recorder struct {
	mu     sync.Mutex
	events []channel.Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 128)}
}

func (r *recorder) handle(ev channel.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) Events() []channel.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]channel.Event, len(r.events))
	copy(out, r.events)
	return out
}

// wait blocks until n events have been delivered.
func (r *recorder) wait(t *testing.T, n int) []channel.Event {
	t.Helper()
	deadline := time.After(chattest.Timeout)
	for {
		if events := r.Events(); len(events) >= n {
			return events
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timeout waiting for %d events, got %d", n, len(r.Events()))
		}
	}
}

func newManager(dialer channel.Dialer) *channel.Manager {
	return channel.NewManager(dialer, channel.WithLogger(zerolog.Nop()))
}

func waitWritten(t *testing.T, conn *chattest.Conn, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(conn.Written()) >= n }, chattest.Timeout, time.Millisecond)
	return conn.WrittenStrings()
}

func openManager(t *testing.T, lang string) (*channel.Manager, *chattest.Dialer, *chattest.Conn, *recorder) {
	t.Helper()
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	m.Open("lobby", "alice", lang, rec.handle)
	conn := dialer.Accept(t)
	rec.wait(t, 1)
	waitWritten(t, conn, 1)
	t.Cleanup(m.Close)
	return m, dialer, conn, rec
}

func TestManager_OpenSendsHandshake(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	assert.Equal(t, channel.StateClosed, m.State())

	m.Open("lobby", "alice", "en", rec.handle)
	assert.Equal(t, channel.StateConnecting, m.State())

	conn := dialer.Accept(t)
	defer m.Close()

	assert.Equal(t, "lobby", conn.Room)
	assert.Equal(t, "alice", conn.Username)

	events := rec.wait(t, 1)
	assert.Equal(t, channel.EventOpened, events[0].Type)
	assert.Equal(t, channel.StateOpen, m.State())

	written := waitWritten(t, conn, 1)
	assert.JSONEq(t, `{"preferred_language":"en"}`, written[0])
}

func TestManager_SendRequiresOpen(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	assert.False(t, m.Send("before open"))

	m.Open("lobby", "alice", "en", rec.handle)
	assert.False(t, m.Send("while connecting"))

	conn := dialer.Accept(t)
	defer m.Close()
	rec.wait(t, 1)

	assert.True(t, m.Send("hello"))
	written := waitWritten(t, conn, 2)
	assert.JSONEq(t, `{"preferred_language":"en"}`, written[0])
	assert.JSONEq(t, `{"content":"hello"}`, written[1])
}

func TestManager_LanguageChangeWhileConnectingBecomesHandshake(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	m.Open("lobby", "alice", "en", rec.handle)
	assert.False(t, m.SetLanguage("fr"))
	assert.False(t, m.SetLanguage("de"))

	conn := dialer.Accept(t)
	defer m.Close()
	rec.wait(t, 1)

	written := waitWritten(t, conn, 1)
	assert.Len(t, written, 1)
	assert.JSONEq(t, `{"preferred_language":"de"}`, written[0])
	assert.Equal(t, "de", m.Language())
}

func TestManager_LanguageChangesWhileOpen(t *testing.T) {
	m, dialer, conn, _ := openManager(t, "en")

	langs := []string{"fr", "es", "ja", "ko", "hi"}
	for _, lang := range langs {
		assert.True(t, m.SetLanguage(lang))
	}

	written := waitWritten(t, conn, 1+len(langs))
	require.Len(t, written, 1+len(langs))
	for i, lang := range langs {
		assert.JSONEq(t, `{"type":"update_language","preferred_language":"`+lang+`"}`, written[i+1])
	}
	assert.Equal(t, 1, dialer.Dials(), "language changes must not reconnect")
	assert.Equal(t, channel.StateOpen, m.State())
}

func TestManager_InboundFramesInOrder(t *testing.T) {
	_, _, conn, rec := openManager(t, "en")

	conn.DeliverJSON(t, map[string]string{"info": "Joined room lobby as alice with language en"})
	conn.Deliver([]byte(`not json`))
	conn.DeliverJSON(t, map[string]string{"username": "bob", "content": "one"})
	conn.DeliverJSON(t, map[string]string{"type": "file", "file_id": "f1", "filename": "a.txt", "username": "bob"})
	conn.DeliverJSON(t, map[string]string{"username": "bob", "content": "two", "audio_base64": "aGk="})

	events := rec.wait(t, 5)
	require.Len(t, events, 5)

	kinds := []protocol.Kind{protocol.KindSystem, protocol.KindText, protocol.KindFile, protocol.KindVoice}
	for i, kind := range kinds {
		ev := events[i+1]
		assert.Equal(t, channel.EventMessage, ev.Type)
		assert.Equal(t, kind, ev.Message.Kind, "event %d", i+1)
	}
	assert.Equal(t, "one", events[2].Message.Content)
}

func TestManager_UncleanClose(t *testing.T) {
	m, _, conn, rec := openManager(t, "en")

	conn.Fail(chat.CloseInternalError, "server error")

	events := rec.wait(t, 2)
	ev := events[1]
	assert.Equal(t, channel.EventError, ev.Type)
	assert.Equal(t, channel.StateErrored, ev.State)

	var closeErr *channel.UnexpectedCloseError
	require.True(t, errors.As(ev.Err, &closeErr))
	assert.Equal(t, 1011, closeErr.Code)
	assert.Equal(t, "server error", closeErr.Reason)
	assert.Contains(t, ev.Err.Error(), "1011")
	assert.Contains(t, ev.Err.Error(), "server error")

	assert.Equal(t, channel.StateErrored, m.State())
	assert.False(t, m.Send("after error"))
}

func TestManager_ConnectFailure(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	m.Open("lobby", "alice", "en", rec.handle)
	dialer.Reject(t, errors.New("connection refused"))

	events := rec.wait(t, 1)
	assert.Equal(t, channel.EventError, events[0].Type)

	var connectErr *channel.ConnectError
	require.True(t, errors.As(events[0].Err, &connectErr))
	assert.Equal(t, "lobby", connectErr.Room)
	assert.Equal(t, "alice", connectErr.Username)
	assert.Equal(t, channel.StateErrored, m.State())
}

func TestManager_CleanCloseSuppressesEvents(t *testing.T) {
	m, _, conn, rec := openManager(t, "en")

	m.Close()

	assert.Equal(t, channel.StateClosed, m.State())
	assert.True(t, conn.Closed())

	conn.DeliverJSON(t, map[string]string{"username": "bob", "content": "late"})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.Events(), 1, "only the open event is expected")
	assert.False(t, m.Send("after close"))

	m.Close()
	assert.Equal(t, channel.StateClosed, m.State())
}

func TestManager_CloseWhileConnecting(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	rec := newRecorder()

	m.Open("lobby", "alice", "en", rec.handle)
	require.Eventually(t, func() bool { return dialer.Dials() == 1 }, chattest.Timeout, time.Millisecond)

	m.Close()

	assert.Equal(t, channel.StateClosed, m.State())
	assert.Empty(t, rec.Events())
}

func TestManager_OpenReplacesHandle(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	first := newRecorder()
	second := newRecorder()

	m.Open("lobby", "alice", "en", first.handle)
	oldConn := dialer.Accept(t)
	first.wait(t, 1)

	m.Open("kitchen", "alice", "fr", second.handle)
	assert.True(t, oldConn.Closed(), "previous handle must be closed before the new one opens")

	newConn := dialer.Accept(t)
	defer m.Close()
	second.wait(t, 1)

	assert.Equal(t, "kitchen", newConn.Room)
	written := waitWritten(t, newConn, 1)
	assert.JSONEq(t, `{"preferred_language":"fr"}`, written[0])

	newConn.DeliverJSON(t, map[string]string{"info": "hello kitchen"})
	events := second.wait(t, 2)
	assert.Equal(t, "hello kitchen", events[1].Message.Content)
	assert.Len(t, first.Events(), 1, "old handler must not see events of the new channel")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", channel.StateClosed.String())
	assert.Equal(t, "connecting", channel.StateConnecting.String())
	assert.Equal(t, "open", channel.StateOpen.String())
	assert.Equal(t, "closing", channel.StateClosing.String())
	assert.Equal(t, "errored", channel.StateErrored.String())
	assert.Equal(t, "unknown", channel.State(42).String())
}

// slowCloseConn blocks in Close until release is closed.
type slowCloseConn struct {
	*chattest.Conn
	closing chan struct{}
	release chan struct{}
}

func (c *slowCloseConn) Close() error {
	close(c.closing)
	<-c.release
	return c.Conn.Close()
}

func TestManager_SendDuringReplacementIsDropped(t *testing.T) {
	dialer := chattest.NewDialer()
	m := newManager(dialer)
	first := newRecorder()

	m.Open("lobby", "alice", "en", first.handle)
	slow := &slowCloseConn{
		Conn:    chattest.NewConn(),
		closing: make(chan struct{}),
		release: make(chan struct{}),
	}
	dialer.AcceptConn(t, slow)
	first.wait(t, 1)

	reopened := make(chan struct{})
	go func() {
		defer close(reopened)
		m.Open("kitchen", "alice", "fr", newRecorder().handle)
	}()

	select {
	case <-slow.closing:
	case <-time.After(chattest.Timeout):
		t.Fatal("timeout waiting for the previous handle to close")
	}

	assert.Equal(t, channel.StateClosing, m.State())
	assert.NotPanics(t, func() {
		assert.False(t, m.Send("hello"))
		assert.False(t, m.SetLanguage("de"))
	})

	close(slow.release)
	select {
	case <-reopened:
	case <-time.After(chattest.Timeout):
		t.Fatal("timeout waiting for Open to return")
	}
	assert.Equal(t, channel.StateConnecting, m.State())

	dialer.Accept(t)
	m.Close()
}
