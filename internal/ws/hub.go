// Package ws streams live trip updates to watching clients.
package ws

import (
	"context"
	"log"
	"sync"

	"github.com/klenoapp/kleno-server/internal/cache"
)

// Hub tracks which clients watch which trip and bridges each watched trip's
// Redis channel onto the local connections. Because updates always travel
// through Redis, watchers see the same stream no matter which server
// instance handled the position sample.
type Hub struct {
	// watchers maps a trip session ID to its connected clients.
	watchers map[string]map[*Client]bool

	// bridges holds one cancel func per active Redis subscription.
	bridges map[string]context.CancelFunc

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	cache *cache.RedisCache

	// ctx is the root for bridge subscriptions, set by Run.
	ctx context.Context
}

// NewHub creates a Hub instance.
func NewHub(cache *cache.RedisCache) *Hub {
	return &Hub{
		watchers:   make(map[string]map[*Client]bool),
		bridges:    make(map[string]context.CancelFunc),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		cache:      cache,
	}
}

// Run drives the hub's main loop. It should run in its own goroutine and
// stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register adds a watcher to its trip.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a watcher.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.watchers[client.sessionID]
	if !ok {
		clients = make(map[*Client]bool)
		h.watchers[client.sessionID] = clients

		// First watcher for this trip: open the Redis bridge.
		bridgeCtx, cancel := context.WithCancel(h.ctx)
		h.bridges[client.sessionID] = cancel
		go h.bridgeTrip(bridgeCtx, client.sessionID)
	}
	clients[client] = true

	log.Printf("[INFO] watcher registered: userID=%d session=%s watchers=%d", client.userID, client.sessionID, len(clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.watchers[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.Close()

	if len(clients) == 0 {
		delete(h.watchers, client.sessionID)
		if cancel, ok := h.bridges[client.sessionID]; ok {
			cancel()
			delete(h.bridges, client.sessionID)
		}
	}

	log.Printf("[INFO] watcher unregistered: userID=%d session=%s", client.userID, client.sessionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, clients := range h.watchers {
		for client := range clients {
			client.Close()
		}
		delete(h.watchers, sessionID)
	}
	for sessionID, cancel := range h.bridges {
		cancel()
		delete(h.bridges, sessionID)
	}
}

// bridgeTrip forwards the trip's Redis channel to local watchers until the
// last one disconnects.
func (h *Hub) bridgeTrip(ctx context.Context, sessionID string) {
	pubsub := h.cache.SubscribeTripUpdates(ctx, sessionID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, NewRawMessage(TypeTripUpdate, []byte(msg.Payload)))

		case <-ctx.Done():
			return
		}
	}
}

// broadcast fans a message out to every watcher of the trip.
func (h *Hub) broadcast(sessionID string, msg *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.watchers[sessionID]))
	for client := range h.watchers[sessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// NotifyTripEnded tells local watchers the trip reached a terminal state.
// Terminal transitions are rare enough that per-instance delivery is fine;
// watchers on other instances notice when the bridge stops producing.
func (h *Hub) NotifyTripEnded(sessionID string, status string) {
	h.broadcast(sessionID, NewMessage(TypeTripEnded, &TripEndedPayload{
		SessionID: sessionID,
		Status:    status,
	}))
}
