//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_service.go -package=mocks
package service

import (
	"context"

	"github.com/tailmate/chat-service/internal/domain"
)

// ConversationStore is the read side of the message store plus read acknowledgement.
type ConversationStore interface {
	History(ctx context.Context, a, b domain.Identity, cursor string, limit int) ([]domain.Message, string, error)
	Conversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error)
	MarkRead(ctx context.Context, reader domain.Identity, ids []string) (int, error)
}

type ProfileLookup interface {
	Lookup(ctx context.Context, identity domain.Identity) (domain.Profile, error)
}
