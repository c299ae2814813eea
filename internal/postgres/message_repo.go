package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m domain.Message) (domain.Message, error) {
	row := r.db.QueryRow(ctx, qCreateMessage,
		m.Sender, m.Receiver, m.Body, m.Sent, m.Read, m.CreatedAt, m.UpdatedAt)

	saved, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return saved, nil
}

// History returns up to limit messages between a and b older than cursor, oldest first,
// and the cursor of the next (older) page when there may be one.
func (r *MessageRepository) History(ctx context.Context, a, b domain.Identity, cursor string, limit int) ([]domain.Message, string, error) {
	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, qHistory, a, b, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		oldest := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}); e == nil {
			next = c
		}
	}
	return lo.Reverse(out), next, nil
}

// Conversations lists every peer of identity with the latest message and the
// number of messages identity has not read yet, most recent first.
func (r *MessageRepository) Conversations(ctx context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	rows, err := r.db.Query(ctx, qConversations, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var (
			c      domain.Conversation
			m      domain.Message
			unread int64
		)
		if err := rows.Scan(&c.Other, &m.ID, &m.Sender, &m.Receiver, &m.Body, &m.Sent, &m.Read,
			&m.CreatedAt, &m.UpdatedAt, &unread); err != nil {
			return nil, err
		}
		c.LastMessage = m
		c.UnreadCount = int(unread)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

// MarkRead flags the given messages as read when reader is their receiver.
// It returns how many messages changed.
func (r *MessageRepository) MarkRead(ctx context.Context, reader domain.Identity, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, qMarkRead, ids, reader)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Body, &m.Sent, &m.Read, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.Ping(ctx)
}
