package badger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
)

const maxTxnRetries = 3

// Store keeps messages in an embedded Badger database.
//
// Keys:
//
//	msg:{lo}:{hi}:{unix_nano_19}:{id}  message JSON, sorted by time within a pair
//	idx:{id}                           the msg key of a message
//	conv:{owner}:{other}               last message and unread count for owner
//
// Identities are base64url encoded so that ':' never appears inside a segment.
type Store struct {
	db  *badgerdb.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path. An empty path keeps everything in memory.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

type conversation struct {
	Last   domain.Message `json:"last"`
	Unread int            `json:"unread"`
}

func (s *Store) Create(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	value, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, err
	}
	key := messageKey(m)

	err = s.update(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(indexKey(m.ID), key); err != nil {
			return err
		}
		if m.Sender != m.Receiver {
			if err := bumpConversation(txn, m.Sender, m.Receiver, m, 0); err != nil {
				return err
			}
		}
		return bumpConversation(txn, m.Receiver, m.Sender, m, 1)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	return m, nil
}

// History returns up to limit messages between a and b older than cursor, oldest first,
// and the cursor of the next (older) page when there may be one.
func (s *Store) History(ctx context.Context, a, b domain.Identity, cursor string, limit int) ([]domain.Message, string, error) {
	var after []byte
	if cursor != "" {
		raw, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil || !strings.Contains(string(raw), ":") {
			return nil, "", fmt.Errorf("%w: %q", domain.ErrInvalidCursor, cursor)
		}
		after = raw
	}

	prefix := pairPrefix(a, b)
	var (
		out  []domain.Message
		last []byte
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		if after != nil {
			seek = append(append([]byte{}, prefix...), after...)
		}
		it.Seek(seek)
		if after != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == string(after) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var m domain.Message
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			out = append(out, m)
			last = item.KeyCopy(nil)[len(prefix):]
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit && last != nil {
		next = base64.RawURLEncoding.EncodeToString(last)
	}
	return lo.Reverse(out), next, nil
}

func (s *Store) Conversations(_ context.Context, identity domain.Identity) ([]domain.Conversation, error) {
	prefix := []byte("conv:" + encode(identity) + ":")
	var out []domain.Conversation
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var c conversation
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &c) }); err != nil {
				return err
			}
			out = append(out, domain.Conversation{
				Other:       c.Last.Peer(identity),
				LastMessage: c.Last,
				UnreadCount: c.Unread,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

// MarkRead flags the given messages as read when reader is their receiver.
// Unknown ids and messages addressed to someone else are skipped.
func (s *Store) MarkRead(ctx context.Context, reader domain.Identity, ids []string) (int, error) {
	var changed int
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		changed = 0
		now := s.now().UTC()
		for _, id := range lo.Uniq(ids) {
			m, key, err := getByID(txn, id)
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if m.Receiver != reader || m.Read {
				continue
			}
			m.Read = true
			m.UpdatedAt = now
			value, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
			if err := markConversationRead(txn, m); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		s.log.Debug("badger txn conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func bumpConversation(txn *badgerdb.Txn, owner, other domain.Identity, m domain.Message, unread int) error {
	key := conversationKey(owner, other)
	c, err := getConversation(txn, key)
	if err != nil {
		return err
	}
	if c.Last.ID == "" || !m.CreatedAt.Before(c.Last.CreatedAt) {
		c.Last = m
	}
	c.Unread += unread
	return putJSON(txn, key, c)
}

func markConversationRead(txn *badgerdb.Txn, m domain.Message) error {
	key := conversationKey(m.Receiver, m.Sender)
	c, err := getConversation(txn, key)
	if err != nil {
		return err
	}
	if c.Unread > 0 {
		c.Unread--
	}
	if c.Last.ID == m.ID {
		c.Last = m
	}
	if err := putJSON(txn, key, c); err != nil {
		return err
	}
	if m.Sender == m.Receiver {
		return nil
	}
	// keep the sender's view of the last message in sync
	other := conversationKey(m.Sender, m.Receiver)
	oc, err := getConversation(txn, other)
	if err != nil {
		return err
	}
	if oc.Last.ID != m.ID {
		return nil
	}
	oc.Last = m
	return putJSON(txn, other, oc)
}

func getConversation(txn *badgerdb.Txn, key []byte) (conversation, error) {
	var c conversation
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	err = item.Value(func(v []byte) error { return json.Unmarshal(v, &c) })
	return c, err
}

func getByID(txn *badgerdb.Txn, id string) (domain.Message, []byte, error) {
	var m domain.Message
	item, err := txn.Get(indexKey(id))
	if err != nil {
		return m, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return m, nil, err
	}
	item, err = txn.Get(key)
	if err != nil {
		return m, nil, err
	}
	err = item.Value(func(v []byte) error { return json.Unmarshal(v, &m) })
	return m, key, err
}

func putJSON(txn *badgerdb.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func encode(id domain.Identity) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func pairPrefix(a, b domain.Identity) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte("msg:" + encode(a) + ":" + encode(b) + ":")
}

func messageKey(m domain.Message) []byte {
	return append(pairPrefix(m.Sender, m.Receiver),
		fmt.Sprintf("%019d:%s", m.CreatedAt.UnixNano(), m.ID)...)
}

func indexKey(id string) []byte {
	return []byte("idx:" + id)
}

func conversationKey(owner, other domain.Identity) []byte {
	return []byte("conv:" + encode(owner) + ":" + encode(other))
}
