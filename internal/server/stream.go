package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"FightPool/internal/event"
	"FightPool/internal/ingestion"
	"FightPool/internal/observability"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamFilter narrows what a client receives. Empty sets match everything.
type streamFilter struct {
	matches map[event.MatchID]bool
	bettors map[event.Pubkey]bool
}

func (f *streamFilter) allows(n event.Notification) bool {
	if len(f.matches) > 0 && (n.MatchID == nil || !f.matches[*n.MatchID]) {
		return false
	}
	if len(f.bettors) > 0 && (n.Bettor == nil || !f.bettors[*n.Bettor]) {
		return false
	}
	return true
}

// subscribeMsg replaces a client's filter: {"matches":[...],"bettors":[...]}.
type subscribeMsg struct {
	Matches []string `json:"matches"`
	Bettors []string `json:"bettors"`
}

func (m subscribeMsg) filter() (*streamFilter, error) {
	f := &streamFilter{
		matches: make(map[event.MatchID]bool, len(m.Matches)),
		bettors: make(map[event.Pubkey]bool, len(m.Bettors)),
	}
	for _, s := range m.Matches {
		id, err := event.ParseMatchID(s)
		if err != nil {
			return nil, err
		}
		f.matches[id] = true
	}
	for _, s := range m.Bettors {
		pk, err := event.ParsePubkey(s)
		if err != nil {
			return nil, err
		}
		f.bettors[pk] = true
	}
	return f, nil
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	filter *streamFilter
}

func (c *client) setFilter(f *streamFilter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (c *client) allows(n event.Notification) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.allows(n)
}

// Hub fans accepted-command notifications out to websocket clients. A
// client too slow to drain its buffer loses messages, never the core.
type Hub struct {
	input      <-chan ingestion.PublishableEvent
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewHub(input <-chan ingestion.PublishableEvent, metrics *observability.Metrics) *Hub {
	return &Hub{
		input:      input,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     observability.NewLogger("stream"),
	}
}

// Run owns the client set until ctx is done or the input closes.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", n).Msg("stream client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case evt, ok := <-h.input:
			if !ok {
				return nil
			}
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt ingestion.PublishableEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	for _, n := range evt.Notifications {
		data, err := json.Marshal(n)
		if err != nil {
			h.logger.Error().Err(err).Int64("seq", evt.Sequence).Msg("marshal notification")
			continue
		}
		for c := range h.clients {
			if !c.allows(n) {
				continue
			}
			select {
			case c.send <- data:
			default:
				if h.metrics != nil {
					h.metrics.StreamDrops.Inc()
				}
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades GET /v1/stream. Optional ?match= and ?bettor= query
// parameters set the initial filter; a subscribe message replaces it.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := subscribeMsg{Matches: q["match"], Bettors: q["bettor"]}.filter()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		filter: f,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Msg("stream client closed")
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		f, err := sub.filter()
		if err != nil {
			continue
		}
		c.setFilter(f)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
