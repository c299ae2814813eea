package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/internal/metrics"
)

const (
	defaultMaxBodyLength = 4000
	defaultStoreTimeout  = 5 * time.Second
)

// Relay is the realtime core: presence, rooms, message and typing fan-out.
//
// Locks are taken in this order: room, delivery, connection.
// Persist and fan-out of one conversation run under its room lock, so every
// subscriber observes its messages in submission order. The delivery lock only
// covers fan-out and is shared with typing signals. Each Send runs under the
// target's connection lock, so nothing reaches a connection once Disconnect returns.
type Relay struct {
	presence *Presence
	rooms    *Directory
	store    MessageStore
	limiter  Limiter

	roomLocks     *keyedMutex
	deliveryLocks *keyedMutex
	connLocks     *keyedMutex

	log           *slog.Logger
	now           func() time.Time
	maxBodyLength int
	storeTimeout  time.Duration
}

type Option func(*Relay)

func WithLimiter(l Limiter) Option {
	return func(r *Relay) { r.limiter = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func WithMaxBodyLength(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxBodyLength = n
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

func NewRelay(store MessageStore, opts ...Option) *Relay {
	r := &Relay{
		presence:      NewPresence(),
		rooms:         NewDirectory(),
		store:         store,
		roomLocks:     newKeyedMutex(),
		deliveryLocks: newKeyedMutex(),
		connLocks:     newKeyedMutex(),
		log:           slog.Default(),
		now:           time.Now,
		maxBodyLength: defaultMaxBodyLength,
		storeTimeout:  defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Presence() *Presence { return r.presence }
func (r *Relay) Rooms() *Directory   { return r.rooms }

// Connect registers c under identity and subscribes it to the identity's personal channel.
func (r *Relay) Connect(identity domain.Identity, c Conn) error {
	if !identity.Valid() {
		return domain.ErrInvalidIdentity
	}
	unlock := r.connLocks.Lock(c.ID())
	defer unlock()

	if r.presence.Register(identity, c) {
		r.log.Debug("relay connect", "identity", identity, "conn", c.ID())
	}
	r.updateGauges()
	return nil
}

// Disconnect drops c from presence and from every room. Safe for unknown connections.
func (r *Relay) Disconnect(c Conn) {
	unlock := r.connLocks.Lock(c.ID())
	defer unlock()

	left := r.rooms.LeaveAll(c)
	if identity, ok := r.presence.Deregister(c); ok {
		r.log.Debug("relay disconnect", "identity", identity, "conn", c.ID(), "rooms", len(left))
	}
	r.updateGauges()
}

// Join subscribes c to its conversation with other.
func (r *Relay) Join(c Conn, other domain.Identity) (domain.RoomKey, error) {
	unlock := r.connLocks.Lock(c.ID())
	defer unlock()

	self, ok := r.presence.IdentityOf(c)
	if !ok {
		return "", domain.ErrIdentityNotRegistered
	}
	if !other.Valid() {
		return "", domain.ErrInvalidIdentity
	}
	key := domain.RoomKeyFor(self, other)
	r.rooms.Join(key, c)
	r.updateGauges()
	return key, nil
}

func (r *Relay) Leave(c Conn, other domain.Identity) (domain.RoomKey, error) {
	unlock := r.connLocks.Lock(c.ID())
	defer unlock()

	self, ok := r.presence.IdentityOf(c)
	if !ok {
		return "", domain.ErrIdentityNotRegistered
	}
	if !other.Valid() {
		return "", domain.ErrInvalidIdentity
	}
	key := domain.RoomKeyFor(self, other)
	r.rooms.Leave(key, c)
	r.updateGauges()
	return key, nil
}

// SubmitFrom submits a message on behalf of the identity that owns c.
func (r *Relay) SubmitFrom(ctx context.Context, c Conn, receiver domain.Identity, body string) (domain.Message, error) {
	sender, ok := r.presence.IdentityOf(c)
	if !ok {
		return domain.Message{}, domain.ErrIdentityNotRegistered
	}
	return r.Submit(ctx, sender, receiver, body)
}

// Submit persists the message, then delivers it to the conversation room and
// notifies the receiver's personal channel. Nothing is delivered when the store fails.
func (r *Relay) Submit(ctx context.Context, sender, receiver domain.Identity, body string) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if err := r.validate(sender, receiver, body); err != nil {
		metrics.MessagesSubmitted.WithLabelValues("invalid").Inc()
		return domain.Message{}, err
	}

	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx, sender)
		switch {
		case err != nil:
			r.log.Warn("relay rate limiter failed, allowing", "identity", sender, "err", err)
		case !allowed:
			metrics.MessagesSubmitted.WithLabelValues("rate_limited").Inc()
			return domain.Message{}, domain.ErrRateLimited
		}
	}

	key := domain.RoomKeyFor(sender, receiver)
	unlock := r.roomLocks.Lock(string(key))
	defer unlock()

	now := r.now().UTC()
	saved, err := r.persist(ctx, domain.Message{
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
		Sent:      true,
		Read:      false,
	})
	if err != nil {
		metrics.MessagesSubmitted.WithLabelValues("store_error").Inc()
		r.log.Warn("relay store create failed", "sender", sender, "receiver", receiver, "err", err)
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	metrics.MessagesSubmitted.WithLabelValues("ok").Inc()

	deliver := r.deliveryLocks.Lock(string(key))
	defer deliver()

	r.fanout(r.rooms.SubscribersOf(key), MessageReceived{Message: saved})
	r.fanout(r.presence.ConnectionsFor(receiver), NewMessageNotification{Message: saved, From: sender})

	return saved, nil
}

// persist outlives the caller's context: a sender that disconnects mid-submit
// still gets its message stored and delivered.
func (r *Relay) persist(ctx context.Context, msg domain.Message) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
	defer cancel()

	start := time.Now()
	saved, err := r.store.Create(ctx, msg)
	metrics.StoreLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	return saved, err
}

func (r *Relay) SignalTypingFrom(c Conn, receiver domain.Identity, isTyping bool) error {
	sender, ok := r.presence.IdentityOf(c)
	if !ok {
		return domain.ErrIdentityNotRegistered
	}
	return r.SignalTyping(sender, receiver, isTyping)
}

// SignalTyping forwards the indicator to the room, skipping the sender's own connections.
// It does not wait for messages being stored. Clearing a stale indicator is up to the client.
func (r *Relay) SignalTyping(sender, receiver domain.Identity, isTyping bool) error {
	if !sender.Valid() || !receiver.Valid() {
		return domain.ErrInvalidIdentity
	}
	key := domain.RoomKeyFor(sender, receiver)
	unlock := r.deliveryLocks.Lock(string(key))
	defer unlock()

	targets := make([]Conn, 0, 2)
	for _, c := range r.rooms.SubscribersOf(key) {
		if id, ok := r.presence.IdentityOf(c); ok && id != sender {
			targets = append(targets, c)
		}
	}
	metrics.TypingSignals.Inc()
	r.fanout(targets, TypingChanged{From: sender, To: receiver, IsTyping: isTyping})
	return nil
}

func (r *Relay) validate(sender, receiver domain.Identity, body string) error {
	if !sender.Valid() || !receiver.Valid() {
		return fmt.Errorf("%w: sender and receiver are required", domain.ErrInvalidMessage)
	}
	if body == "" {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidMessage)
	}
	if utf8.RuneCountInString(body) > r.maxBodyLength {
		return fmt.Errorf("%w: body longer than %d characters", domain.ErrInvalidMessage, r.maxBodyLength)
	}
	return nil
}

// fanout is best-effort per connection; a failing connection does not stop the others.
// Connections deregistered after the snapshot was taken are skipped.
func (r *Relay) fanout(conns []Conn, evt Event) {
	kind := string(evt.Type())
	for _, c := range conns {
		switch err := r.sendTo(c, evt); {
		case errors.Is(err, errGone):
			metrics.Deliveries.WithLabelValues(kind, "gone").Inc()
		case err != nil:
			metrics.Deliveries.WithLabelValues(kind, "dropped").Inc()
			r.log.Debug("relay send failed", "conn", c.ID(), "event", kind, "err", err)
		default:
			metrics.Deliveries.WithLabelValues(kind, "ok").Inc()
		}
	}
}

var errGone = errors.New("connection deregistered")

func (r *Relay) sendTo(c Conn, evt Event) error {
	unlock := r.connLocks.Lock(c.ID())
	defer unlock()

	if _, ok := r.presence.IdentityOf(c); !ok {
		return errGone
	}
	return c.Send(evt)
}

func (r *Relay) updateGauges() {
	metrics.ConnectionsActive.Set(float64(r.presence.Len()))
	metrics.RoomsActive.Set(float64(r.rooms.Len()))
}
