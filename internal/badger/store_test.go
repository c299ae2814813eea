package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailmate/chat-service/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msg(from, to domain.Identity, body string, at time.Time) domain.Message {
	return domain.Message{Sender: from, Receiver: to, Body: body, CreatedAt: at, UpdatedAt: at, Sent: true}
}

func TestStore_CreateAssignsID(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)

	saved, err := s.Create(context.Background(), msg("alice", "bob", "hi", t0))
	req.NoError(err)
	req.NotEmpty(saved.ID)
	req.Equal("hi", saved.Body)
	req.True(saved.Sent)
	req.False(saved.Read)
}

func TestStore_HistoryPagesBackwardsInChronologicalOrder(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		from, to := domain.Identity("alice"), domain.Identity("bob")
		if i%2 == 1 {
			from, to = to, from
		}
		_, err := s.Create(ctx, msg(from, to, fmt.Sprintf("m%d", i), t0.Add(time.Duration(i)*time.Second)))
		req.NoError(err)
	}
	// other pairs must not leak into the page
	_, err := s.Create(ctx, msg("alice", "carol", "other", t0))
	req.NoError(err)

	page, next, err := s.History(ctx, "bob", "alice", "", 2)
	req.NoError(err)
	req.Equal([]string{"m3", "m4"}, bodies(page))
	req.NotEmpty(next)

	page, next, err = s.History(ctx, "alice", "bob", next, 2)
	req.NoError(err)
	req.Equal([]string{"m1", "m2"}, bodies(page))
	req.NotEmpty(next)

	page, next, err = s.History(ctx, "alice", "bob", next, 2)
	req.NoError(err)
	req.Equal([]string{"m0"}, bodies(page))
	req.Empty(next)
}

func TestStore_HistoryRejectsBadCursor(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.History(context.Background(), "alice", "bob", "!!!", 10)
	require.ErrorIs(t, err, domain.ErrInvalidCursor)
}

func TestStore_ConversationsAndMarkRead(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	m1, err := s.Create(ctx, msg("alice", "bob", "one", t0))
	req.NoError(err)
	m2, err := s.Create(ctx, msg("alice", "bob", "two", t0.Add(time.Second)))
	req.NoError(err)
	_, err = s.Create(ctx, msg("carol", "bob", "hey", t0.Add(2*time.Second)))
	req.NoError(err)

	convs, err := s.Conversations(ctx, "bob")
	req.NoError(err)
	req.Len(convs, 2)
	req.Equal(domain.Identity("carol"), convs[0].Other)
	req.Equal(1, convs[0].UnreadCount)
	req.Equal(domain.Identity("alice"), convs[1].Other)
	req.Equal(2, convs[1].UnreadCount)
	req.Equal(m2.ID, convs[1].LastMessage.ID)

	// the sender has nothing unread
	convs, err = s.Conversations(ctx, "alice")
	req.NoError(err)
	req.Len(convs, 1)
	req.Equal(0, convs[0].UnreadCount)

	// only the receiver may mark a message as read
	n, err := s.MarkRead(ctx, "alice", []string{m1.ID})
	req.NoError(err)
	req.Zero(n)

	n, err = s.MarkRead(ctx, "bob", []string{m1.ID, m2.ID, m2.ID, "missing"})
	req.NoError(err)
	req.Equal(2, n)

	n, err = s.MarkRead(ctx, "bob", []string{m1.ID})
	req.NoError(err)
	req.Zero(n, "already read")

	convs, err = s.Conversations(ctx, "bob")
	req.NoError(err)
	req.Equal(0, convs[1].UnreadCount)
	req.True(convs[1].LastMessage.Read)

	convs, err = s.Conversations(ctx, "alice")
	req.NoError(err)
	req.True(convs[0].LastMessage.Read)

	page, _, err := s.History(ctx, "alice", "bob", "", 10)
	req.NoError(err)
	for _, m := range page {
		req.True(m.Read)
	}
}

func TestStore_SelfConversation(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	m, err := s.Create(ctx, msg("alice", "alice", "note", t0))
	req.NoError(err)

	convs, err := s.Conversations(ctx, "alice")
	req.NoError(err)
	req.Len(convs, 1)
	req.Equal(domain.Identity("alice"), convs[0].Other)
	req.Equal(1, convs[0].UnreadCount)

	n, err := s.MarkRead(ctx, "alice", []string{m.ID})
	req.NoError(err)
	req.Equal(1, n)
}

func TestStore_IdentitiesWithSeparators(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, msg("a:b", "c", "x", t0))
	req.NoError(err)
	_, err = s.Create(ctx, msg("a", "b:c", "y", t0))
	req.NoError(err)

	page, _, err := s.History(ctx, "a:b", "c", "", 10)
	req.NoError(err)
	req.Equal([]string{"x"}, bodies(page))
}

func TestStore_PingAfterClose(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.Error(t, s.Ping(context.Background()))
}

func bodies(ms []domain.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Body)
	}
	return out
}
