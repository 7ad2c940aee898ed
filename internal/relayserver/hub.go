// Package relayserver is a channel-based pub/sub relay. Backend services
// publish signed events over HTTP; browser clients subscribe to channels over
// WebSocket, presenting per-socket authorization grants.
package relayserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/agora/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
	total    int
	maxConns int

	appID  string
	key    string
	secret string

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(appID, key, secret string, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		channels:   make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]map[string]struct{}),
		maxConns:   maxConns,
		appID:      appID,
		key:        key,
		secret:     secret,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.channels = make(map[string]map[*Client]struct{})
	h.clients = make(map[*Client]map[string]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("relay connection limit reached (%d), rejecting socket=%s", h.maxConns, c.socketID)
		c.Close()
		return
	}
	h.clients[c] = make(map[string]struct{})
	h.total++
	h.mu.Unlock()

	h.sendToClient(c, OutgoingFrame{Type: FrameEstablished, SocketID: c.socketID})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	subs, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	for channel := range subs {
		if members, ok := h.channels[channel]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	delete(h.clients, c)
	h.total--
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// HandleFrame dispatches one subscriber frame.
func (h *Hub) HandleFrame(c *Client, frame IncomingFrame) {
	switch frame.Type {
	case FrameSubscribe:
		h.handleSubscribe(c, frame)
	case FrameUnsubscribe:
		h.handleUnsubscribe(c, frame)
	case FramePing:
		h.sendToClient(c, OutgoingFrame{Type: FramePong})
	default:
		h.sendToClient(c, OutgoingFrame{Type: FrameError, Message: "unknown frame type"})
	}
}

// handleSubscribe checks the grant before joining the channel. Every channel
// is private: the grant ties this socket to this channel and only the API can
// mint it.
func (h *Hub) handleSubscribe(c *Client, frame IncomingFrame) {
	if frame.Channel == "" {
		h.sendToClient(c, OutgoingFrame{Type: FrameError, Message: "channel is required"})
		return
	}
	if !h.validGrant(c.socketID, frame.Channel, frame.Auth) {
		h.sendToClient(c, OutgoingFrame{Type: FrameError, Channel: frame.Channel, Message: "subscription denied"})
		return
	}

	h.mu.Lock()
	subs, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	subs[frame.Channel] = struct{}{}
	if _, ok := h.channels[frame.Channel]; !ok {
		h.channels[frame.Channel] = make(map[*Client]struct{})
	}
	h.channels[frame.Channel][c] = struct{}{}
	h.mu.Unlock()

	h.sendToClient(c, OutgoingFrame{Type: FrameSubscribed, Channel: frame.Channel})
}

func (h *Hub) handleUnsubscribe(c *Client, frame IncomingFrame) {
	h.mu.Lock()
	if subs, ok := h.clients[c]; ok {
		delete(subs, frame.Channel)
	}
	if members, ok := h.channels[frame.Channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, frame.Channel)
		}
	}
	h.mu.Unlock()

	h.sendToClient(c, OutgoingFrame{Type: FrameUnsubscribed, Channel: frame.Channel})
}

// validGrant recomputes the grant the API issues: key + ":" + HMAC-SHA256 of
// "socketID:channel" under the shared secret.
func (h *Hub) validGrant(socketID, channel, auth string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(socketID + ":" + channel))
	want := h.key + ":" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(auth), []byte(want))
}

// Publish fans one event out to every subscriber of the channel.
func (h *Hub) Publish(channel, event string, data json.RawMessage) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	frame := OutgoingFrame{Type: FrameEvent, Channel: channel, Event: event, Data: data}
	for _, c := range members {
		h.sendToClient(c, frame)
	}
}

// sendToClient drops the frame if the client's buffer is full. A slow
// subscriber must not stall the fan-out.
func (h *Hub) sendToClient(c *Client, frame OutgoingFrame) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		logger.Errorf("relay send buffer full socket=%s, dropping frame", c.socketID)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect cross-origin from the app frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades a subscriber connection and assigns it a socket id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("relay upgrade: %v", err)
		return
	}
	client := NewClient(h, conn, uuid.New().String())
	h.Register(client)
	ctx, cancel := context.WithCancel(context.Background())
	client.Start(ctx, cancel)
}

// ServeTrigger accepts a signed publish request from a backend service.
func (h *Hub) ServeTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"body too large"}`, http.StatusBadRequest)
		return
	}
	if r.Header.Get("X-Relay-Key") != h.key || !h.validBodySignature(body, r.Header.Get("X-Relay-Signature")) {
		http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
		return
	}
	var req TriggerRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Channel == "" || req.Name == "" {
		http.Error(w, `{"error":"invalid trigger"}`, http.StatusBadRequest)
		return
	}
	h.Publish(req.Channel, req.Name, json.RawMessage(req.Data))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

func (h *Hub) validBodySignature(body []byte, sig string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}
