package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tailmate/chat-service/internal/domain"
)

// Limiter is a sliding-window counter per identity kept in Redis sorted sets.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New connects to redisURL and checks it answers.
func New(ctx context.Context, redisURL string, limit int, window time.Duration) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, limit, window), nil
}

func NewWithClient(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  "chat:ratelimit:",
		now:     time.Now,
		entropy: ulid.Monotonic(ulid.DefaultEntropy(), 0),
	}
}

// Allow records one attempt for identity and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, identity domain.Identity) (bool, error) {
	now := l.now()
	key := l.key(identity)
	windowStart := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: l.member(now),
	})
	pipe.Expire(ctx, key, 2*l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(l.limit), nil
}

func (l *Limiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Limiter) Close() error {
	return l.client.Close()
}

func (l *Limiter) key(identity domain.Identity) string {
	return l.prefix + string(identity)
}

func (l *Limiter) member(now time.Time) string {
	l.entropyMu.Lock()
	defer l.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
}
