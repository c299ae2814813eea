package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), "not a url", 10, time.Minute)
	require.Error(t, err)
}

func TestAllow_ReportsRedisErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewWithClient(client, 10, time.Minute)
	t.Cleanup(func() { _ = l.Close() })

	ok, err := l.Allow(context.Background(), "alice")
	require.Error(t, err)
	require.False(t, ok)
}

func TestMembersAreUniqueWithinOneMillisecond(t *testing.T) {
	l := NewWithClient(redis.NewClient(&redis.Options{}), 1, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		m := l.member(now)
		_, dup := seen[m]
		require.False(t, dup, m)
		seen[m] = struct{}{}
	}
	require.Equal(t, "chat:ratelimit:alice", l.key("alice"))
}
