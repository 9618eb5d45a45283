package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomshare/browserd/internal/event"
	"github.com/roomshare/browserd/internal/logging"
)

// Envelope is the wire form of a bus event delivered over /ws.
type Envelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	clientSendSize = 32
)

// client is one websocket subscriber. A client with an empty roomID
// receives every event (monitoring connections).
type client struct {
	conn   *websocket.Conn
	roomID string
	send   chan Envelope
}

// Hub fans bus events out to websocket subscribers. Room-addressed
// events go to that room's subscribers plus any firehose subscribers;
// unaddressed events (pool capacity) go to everyone.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	bus     *event.Bus
	subID   uint64
	logger  *logging.Logger

	upgrader websocket.Upgrader
}

// NewHub creates a Hub subscribed to the bus.
func NewHub(bus *event.Bus, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		bus:     bus,
		logger:  logger.WithComponent("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon fronts trusted room servers, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.subID = bus.SubscribeAll(h.dispatch)
	return h
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.subID)

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events. The optional
// `room` query parameter scopes delivery to one room.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		roomID: r.URL.Query().Get("room"),
		send:   make(chan Envelope, clientSendSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "room", c.roomID)

	go h.writePump(c)
	h.readPump(c)
}

// dispatch routes one bus event to the interested clients. A full send
// buffer drops the event for that client rather than blocking the bus.
func (h *Hub) dispatch(e event.Event) {
	env := Envelope{
		Type:      e.EventType(),
		RoomID:    eventRoomID(e),
		Payload:   e,
		Timestamp: e.Timestamp(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if env.RoomID != "" && c.roomID != "" && c.roomID != env.RoomID {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.logger.Warn("slow websocket client, dropping event", "room", c.roomID, "type", env.Type)
		}
	}
}

// writePump drains the client's send channel onto the socket.
func (h *Hub) writePump(c *client) {
	for env := range c.send {
		data, err := json.Marshal(env)
		if err != nil {
			h.logger.Warn("event marshal failed", "type", env.Type, "error", err)
			continue
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			break
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump blocks until the peer disconnects, then unregisters.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
		h.logger.Debug("websocket client disconnected", "room", c.roomID)
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// eventRoomID extracts the addressed room from the typed events that
// carry one. Events without an addressee broadcast to all clients.
func eventRoomID(e event.Event) string {
	switch ev := e.(type) {
	case event.SessionAllocatedEvent:
		return ev.RoomID
	case event.SessionReleasedEvent:
		return ev.RoomID
	case event.SessionExpiredEvent:
		return ev.RoomID
	case event.QueueJoinedEvent:
		return ev.RoomID
	case event.QueueCancelledEvent:
		return ev.RoomID
	case event.OfferAvailableEvent:
		return ev.RoomID
	case event.OfferExpiredEvent:
		return ev.RoomID
	case event.PlaybackResetEvent:
		return ev.RoomID
	default:
		return ""
	}
}
