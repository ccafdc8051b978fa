package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"attendtrack/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is pushed to every subscriber of the record's class.
type Event struct {
	Type    string                 `json:"type"`
	Payload model.AttendanceRecord `json:"payload"`
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	classID string
}

// Hub fans out attendance marks to WebSocket clients grouped by class.
type Hub struct {
	log        *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[string]map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan model.AttendanceRecord
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan model.AttendanceRecord, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client registry until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*client]struct{})
			return

		case c := <-h.register:
			set, ok := h.clients[c.classID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.classID] = set
			}
			set[c] = struct{}{}
			h.log.Debug("live client registered", zap.String("class_id", c.classID), zap.Int("subscribers", len(set)))

		case c := <-h.unregister:
			h.drop(c)

		case rec := <-h.broadcast:
			set := h.clients[rec.ClassID]
			if len(set) == 0 {
				continue
			}
			msg, err := json.Marshal(Event{Type: "attendance", Payload: rec})
			if err != nil {
				h.log.Error("live event encode failed", zap.Error(err))
				continue
			}
			for c := range set {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	set, ok := h.clients[c.classID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.classID)
	}
}

// AttendanceMarked queues rec for delivery. It never blocks the caller;
// events are dropped when the hub is saturated.
func (h *Hub) AttendanceMarked(rec model.AttendanceRecord) {
	select {
	case h.broadcast <- rec:
	default:
		h.log.Warn("live broadcast queue full, event dropped", zap.String("class_id", rec.ClassID))
	}
}

// Serve upgrades the request and subscribes it to classID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, classID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), classID: classID}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; clients do not send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("live client closed", zap.Error(err))
			}
			return
		}
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
