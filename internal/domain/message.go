package domain

import "time"

type Message struct {
	ID        string    `json:"id"`
	Sender    Identity  `json:"sender"`
	Receiver  Identity  `json:"receiver"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Sent      bool      `json:"sent"`
	Read      bool      `json:"read"`
}

// Peer returns the other side of the conversation as seen by self.
func (m Message) Peer(self Identity) Identity {
	if m.Sender == self {
		return m.Receiver
	}
	return m.Sender
}

// Conversation is one entry of an identity's chat list.
type Conversation struct {
	Other       Identity `json:"other"`
	LastMessage Message  `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}
