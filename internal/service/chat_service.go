package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type ChatService struct {
	store        ConversationStore
	profiles     ProfileLookup
	historyLimit int
	log          *slog.Logger
}

// NewChatService builds the service; profiles may be nil, in which case
// conversations carry the bare identity.
func NewChatService(store ConversationStore, profiles ProfileLookup, historyLimit int, log *slog.Logger) *ChatService {
	switch {
	case historyLimit <= 0:
		historyLimit = defaultHistoryLimit
	case historyLimit > maxHistoryLimit:
		historyLimit = maxHistoryLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{store: store, profiles: profiles, historyLimit: historyLimit, log: log}
}

// ConversationItem is a conversation decorated with the peer's profile.
type ConversationItem struct {
	domain.Conversation
	Profile domain.Profile
}

// History returns one page of the conversation between self and other, oldest first.
func (s *ChatService) History(ctx context.Context, self, other domain.Identity, cursor string, limit int) ([]domain.Message, string, error) {
	if !self.Valid() || !other.Valid() {
		return nil, "", domain.ErrInvalidIdentity
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, next, err := s.store.History(ctx, self, other, cursor, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: history: %v", domain.ErrStoreUnavailable, err)
	}
	return msgs, next, nil
}

func (s *ChatService) Conversations(ctx context.Context, self domain.Identity) ([]ConversationItem, error) {
	if !self.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	convs, err := s.store.Conversations(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("%w: conversations: %v", domain.ErrStoreUnavailable, err)
	}

	return lo.Map(convs, func(c domain.Conversation, _ int) ConversationItem {
		return ConversationItem{Conversation: c, Profile: s.profileOf(ctx, c.Other)}
	}), nil
}

// profileOf never fails the listing: a missing or unreachable profile falls back to the identity.
func (s *ChatService) profileOf(ctx context.Context, identity domain.Identity) domain.Profile {
	fallback := domain.Profile{Identity: identity, DisplayName: string(identity)}
	if s.profiles == nil {
		return fallback
	}
	p, err := s.profiles.Lookup(ctx, identity)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileNotFound) {
			s.log.Warn("chat profile lookup failed", "identity", identity, "err", err)
		}
		return fallback
	}
	if p.DisplayName == "" {
		p.DisplayName = string(identity)
	}
	p.Identity = identity
	return p
}

// MarkRead flags messages addressed to reader as read and returns how many changed.
func (s *ChatService) MarkRead(ctx context.Context, reader domain.Identity, ids []string) (int, error) {
	if !reader.Valid() {
		return 0, domain.ErrInvalidIdentity
	}
	ids = lo.Uniq(lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return id, id != ""
	}))
	if len(ids) == 0 {
		return 0, nil
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, fmt.Errorf("%w: bad message id %q", domain.ErrInvalidMessage, id)
		}
	}

	n, err := s.store.MarkRead(ctx, reader, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %v", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}
