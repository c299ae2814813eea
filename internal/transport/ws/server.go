package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/internal/realtime"
)

type TokenResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

type Options struct {
	PingEvery      time.Duration
	SendBuffer     int
	MaxFrameBytes  int64
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	upgrader websocket.Upgrader
	relay    *realtime.Relay
	resolver TokenResolver
	log      *slog.Logger

	pingEvery     time.Duration
	sendBuffer    int
	maxFrameBytes int64
}

func NewServer(relay *realtime.Relay, resolver TokenResolver, opts Options) *Server {
	s := &Server{
		relay:         relay,
		resolver:      resolver,
		log:           opts.Logger,
		pingEvery:     opts.PingEvery,
		sendBuffer:    opts.SendBuffer,
		maxFrameBytes: opts.MaxFrameBytes,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.pingEvery <= 0 {
		s.pingEvery = 15 * time.Second
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = 64
	}
	if s.maxFrameBytes <= 0 {
		s.maxFrameBytes = 64 << 10
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

// HandleWS serves GET /ws?access_token=... (or an Authorization: Bearer header).
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	identity, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		s.log.Debug("ws token rejected", "err", err)
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		s.log.Warn("ws upgrade failed", "identity", identity, "err", err)
		return
	}

	c := newWsConn(conn, s.sendBuffer)
	_ = c.enqueue(Message{Type: TypeSession, Payload: SessionPayload{ConnectionID: c.ID(), Identity: identity}})
	if err := s.relay.Connect(identity, c); err != nil {
		s.log.Warn("ws connect failed", "identity", identity, "err", err)
		_ = c.Close()
		return
	}
	s.log.Info("ws connected", "identity", identity, "conn", c.ID())

	go s.writeLoop(c)
	s.readLoop(r.Context(), c)

	s.relay.Disconnect(c)
	if err := c.Close(); err != nil {
		s.log.Debug("ws close failed", "identity", identity, "conn", c.ID(), "err", err)
	}
	s.log.Info("ws disconnected", "identity", identity, "conn", c.ID())
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", "conn", c.ID(), "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.replyError(c, "bad_request", "malformed frame", "")
			continue
		}
		s.dispatch(ctx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, msg inbound) {
	switch msg.Type {
	case TypeJoin:
		var p PeerPayload
		if !s.decode(c, msg.Payload, &p) {
			return
		}
		room, err := s.relay.Join(c, p.With)
		if err != nil {
			s.replyErr(c, err, "")
			return
		}
		_ = c.enqueue(Message{Type: TypeJoined, Payload: JoinedPayload{With: p.With, Room: room}})

	case TypeLeave:
		var p PeerPayload
		if !s.decode(c, msg.Payload, &p) {
			return
		}
		if _, err := s.relay.Leave(c, p.With); err != nil {
			s.replyErr(c, err, "")
			return
		}
		_ = c.enqueue(Message{Type: TypeLeft, Payload: PeerPayload{With: p.With}})

	case TypeMessage:
		var p SendPayload
		if !s.decode(c, msg.Payload, &p) {
			return
		}
		saved, err := s.relay.SubmitFrom(ctx, c, p.To, p.Body)
		if err != nil {
			s.replyErr(c, err, p.ClientID)
			return
		}
		_ = c.enqueue(Message{Type: TypeMessageAck, Payload: AckPayload{ClientID: p.ClientID, Message: saved}})

	case TypeTyping:
		var p TypingPayload
		if !s.decode(c, msg.Payload, &p) {
			return
		}
		if err := s.relay.SignalTypingFrom(c, p.To, p.IsTyping); err != nil {
			s.replyErr(c, err, "")
		}

	default:
		s.replyError(c, "unknown_type", "unknown frame type "+msg.Type, "")
	}
}

func (s *Server) decode(c *wsConn, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		s.replyError(c, "bad_request", "missing payload", "")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.replyError(c, "bad_request", "malformed payload", "")
		return false
	}
	return true
}

func (s *Server) replyErr(c *wsConn, err error, clientID string) {
	code := errorCode(err)
	msg := err.Error()
	if code == "internal" {
		s.log.Error("ws request failed", "conn", c.ID(), "err", err)
		msg = "internal error"
	}
	s.replyError(c, code, msg, clientID)
}

func (s *Server) replyError(c *wsConn, code, msg, clientID string) {
	_ = c.enqueue(Message{Type: TypeError, Payload: ErrorPayload{Code: code, Message: msg, ClientID: clientID}})
}

// writeLoop is the only writer of data frames on the socket.
func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				s.log.Debug("ws write failed", "conn", c.ID(), "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, domain.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, domain.ErrIdentityNotRegistered):
		return "not_registered"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// originChecker allows any origin when the list is empty or contains "*".
// Requests without an Origin header (non-browser clients) are always allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
