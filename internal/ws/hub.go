package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-tenant inbox, same trust domain as the API
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active inbox clients and broadcasts conversation
// updates to them. Delivery is best-effort.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With("component", "ws"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("inbox client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("inbox client disconnected")
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

type event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Hub) broadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("marshal ws event failed", "error", err, "type", eventType)
		return
	}
	h.broadcast <- payload
}

// NotifyMessage announces a newly persisted message.
func (h *Hub) NotifyMessage(msg models.Message) {
	h.broadcastEvent("new_message", msg)
}

// NotifyStatus announces an applied delivery status transition.
func (h *Hub) NotifyStatus(waID, wamid, status string) {
	h.broadcastEvent("status_update", map[string]string{
		"wa_id":  waID,
		"wamid":  wamid,
		"status": status,
	})
}

// NotifyContact announces that a contact's summary changed.
func (h *Hub) NotifyContact(waID string) {
	h.broadcastEvent("contact_update", map[string]string{"wa_id": waID})
}

func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Clients only listen; inbound frames are drained for keepalive.
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
