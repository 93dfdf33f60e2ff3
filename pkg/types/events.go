package types

import (
	"encoding/json"
	"time"
)

// Wire-level event names, both directions. These are the contract a
// client implementation must honor.
const (
	// client -> server
	EventJoinRoom    = "join-room"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"

	// server -> client
	EventHistoryLoaded   = "history-loaded"
	EventMessage         = "message"
	EventPresenceUpdated = "presence-updated"
	EventSendFailed      = "send-failed"
)

// ClientEvent is an inbound frame from a client. The payload is decoded
// lazily once the event name is known.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is an outbound frame to a client.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinRoomPayload accompanies a join-room event.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// SendMessagePayload accompanies a send-message event.
type SendMessagePayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// TypingPayload accompanies inbound typing and stop-typing events.
type TypingPayload struct {
	Room string `json:"room"`
}

// TypingNotice is the outbound payload of typing and stop-typing events.
type TypingNotice struct {
	Username string `json:"username"`
}

// MessagePayload is the outbound shape of a single delivered message,
// also used as the element type of history-loaded.
type MessagePayload struct {
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendFailedPayload tells the sender that a send was rejected or lost.
// It is only ever delivered to the sender of the failed message.
type SendFailedPayload struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

// NewMessagePayload converts a persisted message to its wire shape.
func NewMessagePayload(m *Message) MessagePayload {
	return MessagePayload{
		Content:   m.Content,
		Username:  m.Author,
		CreatedAt: m.CreatedAt,
	}
}
