package devserver

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// client is one connected participant.
type client struct {
	id       string
	room     string
	username string
	conn     *wsConn
	outgoing chan []byte
	logger   zerolog.Logger

	mu   sync.RWMutex
	lang string
}

func newClient(room, username string, conn *wsConn, logger zerolog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:       id,
		room:     room,
		username: username,
		conn:     conn,
		outgoing: make(chan []byte, 64),
		logger:   logger.With().Str("client_id", id).Str("room", room).Str("username", username).Logger(),
		lang:     "en",
	}
}

func (c *client) language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lang
}

func (c *client) setLanguage(lang string) {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()
}

// send queues v for the writer. A full queue drops the frame.
func (c *client) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode frame")
		return
	}
	select {
	case c.outgoing <- data:
	default:
		c.logger.Warn().Msg("client queue full, dropping frame")
	}
}

func (c *client) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-c.outgoing:
			if err := c.conn.write(data); err != nil {
				c.logger.Debug().Err(err).Msg("failed to write frame")
				return
			}
		}
	}
}

// hub tracks the clients of every room.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[c.room] = members
	}
	members[c] = struct{}{}
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[c.room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
}

func (h *hub) members(room string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		out = append(out, c)
	}
	return out
}

func (h *hub) all() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for _, members := range h.rooms {
		for c := range members {
			out = append(out, c)
		}
	}
	return out
}

func (h *hub) count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
