// Package hub fans console events out to WebSocket clients. One event
// becomes one frame; clients that cannot keep up lose frames rather
// than slowing the hub down.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

type Hub struct {
	clients    map[string]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan hubBroadcast
	channels   func() []ChannelInfo
	token      string
	mu         sync.RWMutex
	ctxWrap    *ctxWrapper
	running    atomic.Bool
}

type ctxWrapper struct {
	ctx context.Context
}

type clientRegistration struct {
	client          *Client
	initialChannels []byte
}

// New builds a hub that authenticates joins against token and sends
// each new client a channels snapshot from the provider. A nil
// provider means an empty snapshot.
func New(token string, channels func() []ChannelInfo) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan hubBroadcast, 256),
		channels:   channels,
		token:      token,
		ctxWrap:    &ctxWrapper{ctx: context.Background()},
	}
}

func (h *Hub) getContext() context.Context {
	if h.ctxWrap != nil {
		return h.ctxWrap.ctx
	}
	return context.Background()
}

// Run owns the client set until ctx is cancelled. Registration,
// removal and fan-out all funnel through this loop, so no lock is held
// while a frame is written.
func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap = &ctxWrapper{ctx: ctx}
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			h.mu.Unlock()
			if reg.initialChannels != nil {
				select {
				case reg.client.send <- reg.initialChannels:
				default:
				}
			}
			go reg.client.writePump(h.getContext())
			go reg.client.readPump(h.getContext())
			log.Printf("client connected: %s (total: %d)", reg.client.id, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("client disconnected: %s (total: %d)", client.id, h.ClientCount())

		case b := <-h.broadcast:
			h.broadcastToClients(b)
		}
	}
}

func (h *Hub) broadcastToClients(b hubBroadcast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wantsChannel(b.channel) {
			continue
		}
		select {
		case c.send <- b.data:
		default:
			log.Printf("client %s send buffer full, dropping message", c.id)
		}
	}
}

// HandleWebSocket upgrades an authenticated request and hands the
// client to the run loop together with its channels snapshot.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("websocket accept error: %v", err)
		return
	}

	client := newClient(conn, h)

	var list []ChannelInfo
	if h.channels != nil {
		list = h.channels()
	}
	if list == nil {
		list = []ChannelInfo{}
	}
	initial, _ := json.Marshal(ChannelsMessage{Type: "channels", List: list})

	select {
	case h.register <- &clientRegistration{client: client, initialChannels: initial}:
	default:
		log.Printf("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
		return
	}
}

// BroadcastOutput sends one output line to the clients watching its
// channel. The signature matches the console's output sink.
func (h *Hub) BroadcastOutput(channel int, text string, isError bool) {
	msg := OutputMessage{
		Type:    "output",
		Channel: channel,
		Text:    text,
		IsError: isError,
		Ts:      time.Now().Unix(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling output message: %v", err)
		return
	}
	h.sendBroadcast(hubBroadcast{data: data, channel: channel})
}

// BroadcastStatus announces a session state change to every client.
func (h *Hub) BroadcastStatus(session int, state string, reason string) {
	msg := StatusMessage{Type: "status", Session: session, State: state, Reason: reason}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling status message: %v", err)
		return
	}
	h.sendBroadcast(hubBroadcast{data: data})
}

func (h *Hub) sendBroadcast(b hubBroadcast) {
	select {
	case h.broadcast <- b:
	default:
		log.Printf("broadcast channel full, dropping message")
	}
}

func (h *Hub) SendError(client *Client, message string) {
	msg := ErrorMessage{Type: "error", Message: message}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling error message: %v", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		log.Printf("unregister channel full for client %s, forcing close", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
