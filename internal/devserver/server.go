// Package devserver is an in-memory stand-in for the chat backend. It
// serves the live channel at /ws/{room}/{username} and the history,
// upload, download and voice endpoints, so the client can be run and
// tested without the real translation service.
package devserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000"

// Server is the development backend.
type Server struct {
	logger     zerolog.Logger
	translator Translator
	speech     Speech
	now        func() time.Time
	maxUpload  int64

	hub   *hub
	store *store

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTranslator sets the translator. The default is Identity{Lang: "en"}.
func WithTranslator(t Translator) Option {
	return func(s *Server) {
		s.translator = t
	}
}

// WithSpeech sets the speech engine. The default is TextSpeech.
func WithSpeech(sp Speech) Option {
	return func(s *Server) {
		s.speech = sp
	}
}

// WithClock sets the time source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithMaxUpload bounds the size of multipart requests.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		logger:     log.Logger.With().Str("component", "devserver").Logger(),
		translator: Identity{Lang: "en"},
		speech:     TextSpeech{},
		now:        func() time.Time { return time.Now().UTC() },
		maxUpload:  32 << 20,
		hub:        newHub(),
		store:      newStore(),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}/{username}", s.handleWebSocket)
	mux.HandleFunc("GET /history/{room}", s.handleHistory)
	mux.HandleFunc("POST /create-room/{room}", s.handleCreateRoom)
	mux.HandleFunc("POST /upload_file", s.handleUploadFile)
	mux.HandleFunc("GET /download_file/{id}", s.handleDownloadFile)
	mux.HandleFunc("GET /static/uploads/{id}", s.handleStaticFile)
	mux.HandleFunc("POST /voice_message", s.handleVoiceMessage)
	mux.HandleFunc("POST /voice-translate", s.handleVoiceTranslate)
	mux.HandleFunc("GET /supported_languages", s.handleSupportedLanguages)
	return mux
}

// Start listens on address and serves until Stop is called.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}

	s.mu.Lock()
	s.listener = listener
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.http
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("devserver started")

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "failed to serve")
	case <-s.quit:
		return nil
	}
}

// Stop closes the listener and every live channel.
func (s *Server) Stop(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, c := range s.hub.all() {
		_ = c.conn.closeWith(ws.StatusGoingAway, "server shutting down")
	}
	s.wg.Wait()
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of participants connected to room.
func (s *Server) ClientCount(room string) int {
	return s.hub.count(room)
}

// Kick closes every channel of username in room with code and reason.
// It returns how many channels were closed.
func (s *Server) Kick(room, username string, code int, reason string) int {
	n := 0
	for _, c := range s.hub.members(room) {
		if c.username != username {
			continue
		}
		_ = c.conn.closeWith(ws.StatusCode(code), reason)
		n++
	}
	return n
}

type infoFrame struct {
	Info string `json:"info"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type chatFrame struct {
	Username         string  `json:"username"`
	Room             string  `json:"room"`
	Content          string  `json:"content"`
	Timestamp        string  `json:"timestamp"`
	DetectedLanguage string  `json:"detected_language"`
	OriginalContent  string  `json:"original_content"`
	OriginalLanguage string  `json:"original_language"`
	AudioBase64      *string `json:"audio_base64,omitempty"`
}

type fileFrame struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	FileName  string `json:"file_name"`
	FileID    string `json:"file_id"`
	FileURL   string `json:"file_url"`
	Timestamp string `json:"timestamp"`
}

type inboundFrame struct {
	Type              string  `json:"type"`
	PreferredLanguage string  `json:"preferred_language"`
	Content           *string `json:"content"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	room, username := r.PathValue("room"), r.PathValue("username")
	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := newClient(room, username, newWSConn(raw), s.logger)
	s.wg.Add(1)
	go s.handleClient(c)
}

func (s *Server) handleClient(c *client) {
	defer s.wg.Done()

	s.hub.join(c)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(done)
	}()
	defer func() {
		s.hub.leave(c)
		close(done)
		<-writerDone
		_ = c.conn.close()
		c.logger.Info().Msg("client disconnected")
	}()

	data, err := c.conn.read()
	var hs inboundFrame
	if err == nil {
		err = json.Unmarshal(data, &hs)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("invalid initialization data")
		_ = c.conn.write(mustJSON(errorFrame{Error: "Invalid initialization data"}))
		return
	}
	if hs.PreferredLanguage != "" {
		c.setLanguage(hs.PreferredLanguage)
	}

	c.logger.Info().Str("language", c.language()).Str("remote", c.conn.remoteAddr()).Msg("client joined")
	c.send(infoFrame{Info: "Joined room " + c.room + " as " + c.username + " with language " + c.language()})

	for {
		data, err := c.conn.read()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.send(errorFrame{Error: "Invalid message"})
			continue
		}

		switch frame.Type {
		case "update_language":
			lang := frame.PreferredLanguage
			if lang == "" {
				lang = "en"
			}
			c.setLanguage(lang)
			c.send(infoFrame{Info: "Language updated to " + lang})
			continue
		case "file":
			continue
		}

		if frame.Content == nil {
			c.send(errorFrame{Error: "Missing content"})
			continue
		}
		s.postText(c.room, c.username, *frame.Content)
	}
}

// postText records a text message and broadcasts it, translated for each
// member's preferred language.
func (s *Server) postText(room, username, content string) {
	detected := s.translator.Detect(content)
	ts := s.now()
	s.store.appendRecord(record{Username: username, Room: room, Content: content, Timestamp: ts})

	for _, member := range s.hub.members(room) {
		translated := content
		if lang := member.language(); lang != detected {
			translated = s.translator.Translate(content, detected, lang)
		}
		member.send(chatFrame{
			Username:         username,
			Room:             room,
			Content:          translated,
			Timestamp:        ts.Format(timestampLayout),
			DetectedLanguage: detected,
			OriginalContent:  content,
			OriginalLanguage: detected,
		})
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func cleanExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && !strings.ContainsAny(name[i:], `/\`) {
		return name[i:]
	}
	return ""
}
