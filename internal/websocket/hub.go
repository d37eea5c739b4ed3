package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second
	// Largest command message accepted from a client
	maxMessageSize = 2048
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local network use
	},
}

// Event represents a WebSocket event
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StatusPayload is the payload of a "status" event
type StatusPayload struct {
	Player string      `json:"player"`
	Data   interface{} `json:"data"`
}

// CommandRequest is what a client sends to press buttons
type CommandRequest struct {
	Type     string   `json:"type"`
	Player   string   `json:"player"`
	Command  string   `json:"command"`
	Commands []string `json:"commands,omitempty"`
	Repeats  int      `json:"repeats,omitempty"`
}

// CommandHandler runs a client command and reports whether it succeeded
type CommandHandler func(req CommandRequest) (bool, error)

// SnapshotFunc returns the current status events to greet a new client with
type SnapshotFunc func() []StatusPayload

// Client represents a WebSocket client
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	unregister chan *Client
	mu         sync.RWMutex

	onCommand CommandHandler
	snapshot  SnapshotFunc
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		unregister: make(chan *Client),
	}
}

// SetCommandHandler sets the callback for client command messages
func (h *Hub) SetCommandHandler(handler CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommand = handler
}

// SetSnapshot sets the source of the initial status sent to new clients
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket: Client disconnected from %s (total: %d)", client.remoteAddr, count)

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

// addClient registers a client right away so replies queued by its read
// loop are never dropped
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("WebSocket: Client connected from %s (total: %d)", client.remoteAddr, count)
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("WebSocket: Failed to marshal event: %v", err)
		return
	}
	h.broadcast <- data
}

// BroadcastStatus sends a player status event to all clients
func (h *Hub) BroadcastStatus(player string, data interface{}) {
	h.Broadcast(Event{
		Type:    "status",
		Payload: StatusPayload{Player: player, Data: data},
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	log.Printf("WebSocket: Upgrade request from %s (User-Agent: %s)", remoteAddr, r.UserAgent())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: Upgrade failed from %s: %v", remoteAddr, err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		remoteAddr: remoteAddr,
	}

	// Send initial connection success and the current status before the
	// hub can close the send buffer
	client.trySend(Event{Type: "connected"})
	h.mu.RLock()
	snapshot := h.snapshot
	h.mu.RUnlock()
	if snapshot != nil {
		for _, s := range snapshot() {
			client.trySend(Event{Type: "status", Payload: s})
		}
	}
	h.addClient(client)

	go client.writePump()
	go client.readPump()
}

// queue sends an event to a registered client; it is dropped once the hub
// has let go of the client
func (c *Client) queue(event Event) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	c.trySend(event)
}

// trySend marshals an event onto the send buffer, dropping it when full
func (c *Client) trySend(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump sends messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		// Reset read deadline on any message (keepalive from client)
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// command sequences can take a while; keep reading frames meanwhile
		go func(message []byte) {
			if reply, ok := c.hub.handleMessage(message); ok {
				c.queue(reply)
			}
		}(message)
	}
}

// handleMessage dispatches a client message; keepalives and unknown types get no reply
func (h *Hub) handleMessage(message []byte) (Event, bool) {
	var req CommandRequest
	if err := json.Unmarshal(message, &req); err != nil || req.Type != "command" {
		return Event{}, false
	}

	reply := map[string]interface{}{"player": req.Player, "command": req.Command}
	if req.Player == "" || (strings.TrimSpace(req.Command) == "" && len(req.Commands) == 0) {
		reply["success"] = false
		reply["error"] = "player and command are required"
		return Event{Type: "command_result", Payload: reply}, true
	}

	h.mu.RLock()
	handler := h.onCommand
	h.mu.RUnlock()
	if handler == nil {
		reply["success"] = false
		reply["error"] = "commands are not accepted"
		return Event{Type: "command_result", Payload: reply}, true
	}

	ok, err := handler(req)
	reply["success"] = ok
	if err != nil {
		reply["error"] = err.Error()
	}
	return Event{Type: "command_result", Payload: reply}, true
}
