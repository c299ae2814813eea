package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/internal/realtime"
	"github.com/tailmate/chat-service/internal/service"
	httpmw "github.com/tailmate/chat-service/internal/transport/http/middleware"
	"github.com/tailmate/chat-service/pkg/httputil"
)

type Handler struct {
	chatSvc  *service.ChatService
	relay    *realtime.Relay
	validate *validator.Validate
}

func NewHandler(chat *service.ChatService, relay *realtime.Relay) *Handler {
	return &Handler{
		chatSvc:  chat,
		relay:    relay,
		validate: validator.New(),
	}
}

// GET /conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self := httpmw.IdentityFromCtx(r.Context())

	items, err := h.chatSvc.Conversations(r.Context(), self)
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}

	resp := ConversationsResponse{Items: lo.Map(items, func(c service.ConversationItem, _ int) ConversationItem {
		return ConversationItem{
			With:        c.Other,
			DisplayName: c.Profile.DisplayName,
			AvatarURL:   c.Profile.AvatarURL,
			LastMessage: toMessageItem(c.LastMessage),
			UnreadCount: c.UnreadCount,
		}
	})}
	httputil.OK(w, resp)
}

// GET /conversations/{identity}/messages?cursor=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	self := httpmw.IdentityFromCtx(r.Context())
	other := domain.Identity(chi.URLParam(r, "identity"))

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	msgs, next, err := h.chatSvc.History(r.Context(), self, other, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.OK(w, HistoryResponse{Items: lo.Map(msgs, func(m domain.Message, _ int) MessageItem {
		return toMessageItem(m)
	}), NextCursor: next})
}

// POST /conversations/{identity}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	self := httpmw.IdentityFromCtx(r.Context())
	other := domain.Identity(chi.URLParam(r, "identity"))

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.relay.Submit(r.Context(), self, other, req.Body)
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.Created(w, toMessageItem(saved))
}

// POST /messages/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	self := httpmw.IdentityFromCtx(r.Context())

	var req MarkReadRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.chatSvc.MarkRead(r.Context(), self, req.IDs)
	if err != nil {
		httputil.Fail(r.Context(), w, err)
		return
	}
	httputil.OK(w, MarkReadResponse{Updated: n})
}

// GET /presence/{identity}
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(chi.URLParam(r, "identity"))
	presence := h.relay.Presence()
	httputil.OK(w, PresenceResponse{
		Identity:    identity,
		Online:      presence.Online(identity),
		Connections: len(presence.ConnectionsFor(identity)),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, fmt.Sprintf("validation failed: %v", err), nil)
		return false
	}
	return true
}
