// Package gateway pushes rule-change notifications to connected admin
// dashboards over WebSocket.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventRulesChanged = "rules_changed"
	EventHello        = "hello"

	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionSeeded  = "seeded"

	sendBuffer   = 64
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Event is one notification frame, sent as a JSON text message.
type Event struct {
	Type      string    `json:"type"`
	Action    string    `json:"action,omitempty"`
	RuleID    int64     `json:"rule_id,omitempty"`
	Group     string    `json:"unit_code,omitempty"`
	Attribute string    `json:"attribute_type,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	At        time.Time `json:"at"`
}

type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Gateway *Gateway
}

// Gateway tracks live connections. Publishing never blocks on a slow client;
// frames are dropped when its buffer is full.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	nextConnID  uint64
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

// New builds a gateway. An empty allowedOrigins accepts any origin.
func New(allowedOrigins []string, logger zerolog.Logger) *Gateway {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	return &Gateway{
		connections: make(map[string]*Connection),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[strings.ToLower(r.Header.Get("Origin"))]
				return ok
			},
		},
	}
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	g.mu.Lock()
	g.nextConnID++
	c := &Connection{
		ID:      fmt.Sprintf("conn_%d", g.nextConnID),
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Gateway: g,
	}
	g.connections[c.ID] = c
	total := len(g.connections)
	g.mu.Unlock()

	g.logger.Info().Str("conn_id", c.ID).Int("total", total).Msg("client connected")

	if hello, err := json.Marshal(Event{Type: EventHello, At: time.Now().UTC()}); err == nil {
		c.Send <- hello
	}

	go c.readPump()
	go c.writePump()
}

// readPump only services control frames; clients have nothing to say.
func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Gateway.logger.Debug().Err(err).Str("conn_id", c.ID).Msg("read error")
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.connections[c.ID]; !ok {
		return
	}
	delete(g.connections, c.ID)
	close(c.Send)
	g.logger.Info().Str("conn_id", c.ID).Int("total", len(g.connections)).Msg("client disconnected")
}

// Publish broadcasts evt to every connection.
func (g *Gateway) Publish(evt Event) {
	if evt.Type == "" {
		evt.Type = EventRulesChanged
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		g.logger.Error().Err(err).Msg("encode event")
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.connections {
		select {
		case c.Send <- data:
		default:
			g.logger.Warn().Str("conn_id", c.ID).Msg("dropping event for slow client")
		}
	}
}

func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Close drops every connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.connections {
		delete(g.connections, id)
		close(c.Send)
	}
}
