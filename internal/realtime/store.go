//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package realtime

import (
	"context"

	"github.com/tailmate/chat-service/internal/domain"
)

// MessageStore persists messages created by the relay.
type MessageStore interface {
	Create(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Limiter decides whether an identity may send another message now.
type Limiter interface {
	Allow(ctx context.Context, identity domain.Identity) (bool, error)
}
