package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const clientSendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans engine events out to connected WebSocket clients. A slow client
// never backpressures the engine: when its send buffer is full the event is
// dropped for that client.
type Hub struct {
	log *logger.Entry

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		log:     logger.WithField("component", "EventHub"),
		clients: make(map[*client]struct{}),
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).WithField("event", event.Type).
			Error("Failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer, drop the event rather than block.
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription and streams
// events until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade event subscriber")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	subscribers := len(h.clients)
	h.mu.Unlock()

	h.log.WithField("subscribers", subscribers).Info("Event subscriber connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.WithError(err).Debug("Event subscriber write failed")
			return
		}
	}
}

// readLoop drains the connection so control frames are processed and detects
// disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	_ = c.conn.Close()
	h.log.Info("Event subscriber disconnected")
}
