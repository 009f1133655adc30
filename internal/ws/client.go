package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long a single write may take.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; watchers only send heartbeats.
	maxMessageSize = 1024
)

// Client is one websocket watcher of a single trip.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// send is the outbound message queue. Slow consumers get dropped
	// rather than blocking the hub. It is never closed; done signals
	// shutdown instead, so a bridge goroutine racing Close can never
	// send on a closed channel.
	send chan []byte
	done chan struct{}

	userID    int64
	sessionID string

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		userID:    userID,
		sessionID: sessionID,
	}
}

// ReadPump consumes inbound frames until the connection dies. Watchers are
// read-mostly; the only inbound message we act on is the heartbeat.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] watcher read error: userID=%d session=%s err=%v", c.userID, c.sessionID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == TypeHeartbeat {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			c.SendMessage(NewMessage(TypePong, nil))
		}
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// SendMessage queues a message without blocking. A watcher whose queue is
// full has stopped reading and loses the message; a closed watcher drops it.
func (c *Client) SendMessage(msg *Message) {
	select {
	case <-c.done:
		return
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] failed to marshal message: %v", err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("[WARN] watcher send queue full: userID=%d session=%s", c.userID, c.sessionID)
	}
}

// Close signals shutdown exactly once. The send queue stays open so
// concurrent senders at worst enqueue into a drained channel.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
