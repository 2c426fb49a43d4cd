package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"donationdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ErrHubBusy is returned when the broadcast queue is full; the message is dropped.
var ErrHubBusy = errors.New("websocket hub busy")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer and the token check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
}

// Hub fans appeal and communication events out to connected admin sessions.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			slog.Debug("websocket client connected", "user_id", client.UserID, "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				slog.Debug("websocket client disconnected", "user_id", client.UserID)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer.
					close(client.Send)
					delete(h.clients, client)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// BroadcastJSON queues v for every client without blocking the caller.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		slog.Warn("websocket broadcast dropped", "reason", "queue full")
		return ErrHubBusy
	}
}

// Clients reports the number of connected clients, zero once Run has stopped.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection so close frames are noticed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "user_id", c.UserID, "error", err)
			}
			break
		}
	}
}

// Handler authenticates the ?token= JWT, checks the role against allowedRoles
// and upgrades the connection.
func Handler(hub *Hub, secret []byte, allowedRoles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		actor, err := middleware.ParseToken(tokenString, secret)
		if err != nil {
			slog.Info("websocket connection rejected", "reason", "invalid token")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if !slices.Contains(allowedRoles, actor.Role) {
			slog.Info("websocket connection rejected", "reason", "role not allowed", "role", actor.Role)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}
		client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), UserID: actor.ID.String()}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
