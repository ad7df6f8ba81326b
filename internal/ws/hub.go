// Package ws pushes new conversation messages to dashboard sockets in real time.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"textreply/backend/internal/models"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Peers only send control frames
	maxMessageSize = 4 * 1024

	sendBuffer = 32
)

// Event is pushed to every socket watching the page.
type Event struct {
	Type           string          `json:"type"`
	PageID         string          `json:"pageId"`
	ConversationID string          `json:"conversationId"`
	Message        *models.Message `json:"message,omitempty"`
}

// EventMessage is the Event type for a stored message
const EventMessage = "message"

type publication struct {
	pageID  string
	payload []byte
}

// Hub fans page events out to subscribed sockets
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan publication
	upgrader   websocket.Upgrader
	log        *logger.Logger

	mu     sync.RWMutex
	counts map[string]int
	done   chan struct{}
}

// NewHub returns a hub accepting upgrades from allowedOrigins ("*" allows any).
func NewHub(allowedOrigins []string, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan publication, 256),
		log:        log,
		counts:     make(map[string]int),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Run owns the subscriber set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
					metrics.LiveSubscribers.Dec()
				}
			}
			h.clients = map[string]map[*Client]bool{}
			h.mu.Lock()
			h.counts = map[string]int{}
			h.mu.Unlock()
			return

		case client := <-h.register:
			set := h.clients[client.pageID]
			if set == nil {
				set = make(map[*Client]bool)
				h.clients[client.pageID] = set
			}
			set[client] = true
			h.setCount(client.pageID, len(set))
			metrics.LiveSubscribers.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case pub := <-h.broadcast:
			for client := range h.clients[pub.pageID] {
				select {
				case client.send <- pub.payload:
				default:
					h.log.Warn("Dropping slow live subscriber", "pageId", pub.pageID)
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	set := h.clients[client.pageID]
	if !set[client] {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.pageID)
	}
	h.setCount(client.pageID, len(set))
	metrics.LiveSubscribers.Dec()
}

func (h *Hub) setCount(pageID string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n == 0 {
		delete(h.counts, pageID)
		return
	}
	h.counts[pageID] = n
}

// Subscribers returns the number of sockets watching pageID.
func (h *Hub) Subscribers(pageID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[pageID]
}

// Publish queues ev for the page's subscribers. It never blocks; events are
// dropped when nobody listens or the queue is full.
func (h *Hub) Publish(ev Event) {
	if h.Subscribers(ev.PageID) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.LogError(err, "Failed to encode live event")
		return
	}
	select {
	case h.broadcast <- publication{pageID: ev.PageID, payload: payload}:
	default:
		h.log.Warn("Live event queue full, dropping event", "pageId", ev.PageID)
	}
}

// Serve upgrades the request and streams pageID's events until the peer leaves.
func (h *Hub) Serve(c *gin.Context, pageID string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		pageID: pageID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
