package ws

import (
	"encoding/json"
	"time"
)

// Message types on the trip watch channel.
const (
	// Server -> client
	TypeTripUpdate = "trip:update"
	TypeTripEnded  = "trip:ended"
	TypePong       = "pong"
	TypeError      = "error"

	// Client -> server
	TypeHeartbeat = "heartbeat"
)

// Message is the envelope for everything sent over the websocket.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewRawMessage wraps an already-serialized payload, so updates read off the
// Redis channel are forwarded without a decode/encode round trip.
func NewRawMessage(msgType string, payload []byte) *Message {
	return &Message{
		Type:      msgType,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now().UnixMilli(),
	}
}

// TripEndedPayload tells watchers the trip reached a terminal state.
type TripEndedPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ErrorPayload carries an error to the client before the connection closes.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
