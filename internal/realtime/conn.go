package realtime

import "github.com/tailmate/chat-service/internal/domain"

// Conn is one live transport session. Implementations must be usable as map keys.
// Send must not block and must not call back into the relay for the same connection.
type Conn interface {
	ID() string
	Send(evt Event) error
}

type EventType string

const (
	EventMessageReceived        EventType = "message_received"
	EventTypingChanged          EventType = "typing_changed"
	EventNewMessageNotification EventType = "new_message_notification"
)

// Event is delivered to connections by the relay.
type Event interface {
	Type() EventType
}

type MessageReceived struct {
	Message domain.Message `json:"message"`
}

func (MessageReceived) Type() EventType { return EventMessageReceived }

type TypingChanged struct {
	From     domain.Identity `json:"from"`
	To       domain.Identity `json:"to"`
	IsTyping bool            `json:"is_typing"`
}

func (TypingChanged) Type() EventType { return EventTypingChanged }

// NewMessageNotification goes to the receiver's personal channel, whether or not
// the receiver has the conversation open.
type NewMessageNotification struct {
	Message domain.Message  `json:"message"`
	From    domain.Identity `json:"from"`
}

func (NewMessageNotification) Type() EventType { return EventNewMessageNotification }
