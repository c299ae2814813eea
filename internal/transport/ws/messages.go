package ws

import (
	"encoding/json"

	"github.com/tailmate/chat-service/internal/domain"
)

// Inbound frame types.
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
	TypeTyping  = "typing"
)

// Outbound frame types. Relay events use their own type names.
const (
	TypeSession    = "session"
	TypeJoined     = "joined"
	TypeLeft       = "left"
	TypeMessageAck = "message_ack"
	TypeError      = "error"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type PeerPayload struct {
	With domain.Identity `json:"with"`
}

type SendPayload struct {
	To       domain.Identity `json:"to"`
	Body     string          `json:"body"`
	ClientID string          `json:"client_id,omitempty"`
}

type TypingPayload struct {
	To       domain.Identity `json:"to"`
	IsTyping bool            `json:"is_typing"`
}

type SessionPayload struct {
	ConnectionID string          `json:"connection_id"`
	Identity     domain.Identity `json:"identity"`
}

type JoinedPayload struct {
	With domain.Identity `json:"with"`
	Room domain.RoomKey  `json:"room"`
}

// AckPayload confirms a stored message to the connection that sent it.
type AckPayload struct {
	ClientID string         `json:"client_id,omitempty"`
	Message  domain.Message `json:"message"`
}

type ErrorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ClientID string `json:"client_id,omitempty"`
}
