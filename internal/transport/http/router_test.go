package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/internal/mocks"
	"github.com/tailmate/chat-service/internal/realtime"
	"github.com/tailmate/chat-service/internal/service"
	transporthttp "github.com/tailmate/chat-service/internal/transport/http"
	"github.com/tailmate/chat-service/internal/transport/ws"
)

const msgID = "3f0e1a2b-5c6d-4e7f-8a9b-0c1d2e3f4a5b"

type tokens map[string]domain.Identity

func (m tokens) Resolve(_ context.Context, token string) (domain.Identity, error) {
	if id, ok := m[token]; ok {
		return id, nil
	}
	return "", domain.ErrInvalidToken
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fixture struct {
	router   http.Handler
	store    *mocks.MockMessageStore
	convs    *mocks.MockConversationStore
	profiles *mocks.MockProfileLookup
	relay    *realtime.Relay
}

func newFixture(t *testing.T, health error) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    mocks.NewMockMessageStore(ctrl),
		convs:    mocks.NewMockConversationStore(ctrl),
		profiles: mocks.NewMockProfileLookup(ctrl),
	}
	f.relay = realtime.NewRelay(f.store)
	resolver := tokens{"tok-alice": "alice"}
	f.router = transporthttp.NewRouter(transporthttp.Deps{
		Handler:  transporthttp.NewHandler(service.NewChatService(f.convs, f.profiles, 20, nil), f.relay),
		WS:       ws.NewServer(f.relay, resolver, ws.Options{}),
		Resolver: resolver,
		Health:   pinger{err: health},
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ListConversations(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	f.convs.EXPECT().Conversations(gomock.Any(), domain.Identity("alice")).Return([]domain.Conversation{{
		Other:       "bob",
		LastMessage: domain.Message{ID: msgID, Sender: "bob", Receiver: "alice", Body: "woof", CreatedAt: at, Sent: true},
		UnreadCount: 1,
	}}, nil)
	f.profiles.EXPECT().Lookup(gomock.Any(), domain.Identity("bob")).
		Return(domain.Profile{Identity: "bob", DisplayName: "Bob", AvatarURL: "https://cdn/bob.png"}, nil)

	rec := f.do(http.MethodGet, "/conversations", "")
	req.Equal(http.StatusOK, rec.Code)

	var resp transporthttp.ConversationsResponse
	decodeData(t, rec, &resp)
	req.Len(resp.Items, 1)
	req.Equal(domain.Identity("bob"), resp.Items[0].With)
	req.Equal("Bob", resp.Items[0].DisplayName)
	req.Equal(1, resp.Items[0].UnreadCount)
	req.Equal("woof", resp.Items[0].LastMessage.Body)
}

func TestRouter_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	f.convs.EXPECT().History(gomock.Any(), domain.Identity("alice"), domain.Identity("bob"), "", 5).
		Return([]domain.Message{{ID: msgID, Body: "hi"}}, "older", nil)
	rec := f.do(http.MethodGet, "/conversations/bob/messages?limit=5", "")
	req.Equal(http.StatusOK, rec.Code)

	var resp transporthttp.HistoryResponse
	decodeData(t, rec, &resp)
	req.Len(resp.Items, 1)
	req.Equal("older", resp.NextCursor)

	f.convs.EXPECT().History(gomock.Any(), gomock.Any(), gomock.Any(), "junk", 20).
		Return(nil, "", domain.ErrInvalidCursor)
	rec = f.do(http.MethodGet, "/conversations/bob/messages?cursor=junk", "")
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/conversations/bob/messages?limit=abc", "")
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestRouter_SendMessageGoesThroughRelay(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	bob := &recordingConn{id: "bob-1"}
	req.NoError(f.relay.Connect("bob", bob))

	f.store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m domain.Message) (domain.Message, error) {
			m.ID = msgID
			return m, nil
		})

	rec := f.do(http.MethodPost, "/conversations/bob/messages", `{"body":" sit! "}`)
	req.Equal(http.StatusCreated, rec.Code)

	var item transporthttp.MessageItem
	decodeData(t, rec, &item)
	req.Equal(msgID, item.ID)
	req.Equal("sit!", item.Body)
	req.Equal(domain.Identity("alice"), item.Sender)

	req.Len(bob.events, 1)
	req.Equal(realtime.EventNewMessageNotification, bob.events[0].Type())
}

func TestRouter_SendMessageErrors(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/conversations/bob/messages", `{"body":""}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/conversations/bob/messages", `{"body":"   "}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/conversations/bob/messages", `not json`).Code)

	f.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.New("down"))
	require.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/conversations/bob/messages", `{"body":"x"}`).Code)
}

func TestRouter_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	f.convs.EXPECT().MarkRead(gomock.Any(), domain.Identity("alice"), []string{msgID}).Return(1, nil)
	rec := f.do(http.MethodPost, "/messages/read", `{"ids":["`+msgID+`"]}`)
	req.Equal(http.StatusOK, rec.Code)

	var resp transporthttp.MarkReadResponse
	decodeData(t, rec, &resp)
	req.Equal(1, resp.Updated)

	req.Equal(http.StatusBadRequest, f.do(http.MethodPost, "/messages/read", `{"ids":[]}`).Code)
	req.Equal(http.StatusBadRequest, f.do(http.MethodPost, "/messages/read", `{"ids":["nope"]}`).Code)
}

func TestRouter_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	req.NoError(f.relay.Connect("bob", &recordingConn{id: "b1"}))
	req.NoError(f.relay.Connect("bob", &recordingConn{id: "b2"}))

	var resp transporthttp.PresenceResponse
	decodeData(t, f.do(http.MethodGet, "/presence/bob", ""), &resp)
	req.True(resp.Online)
	req.Equal(2, resp.Connections)

	decodeData(t, f.do(http.MethodGet, "/presence/carol", ""), &resp)
	req.False(resp.Online)
	req.Zero(resp.Connections)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	ok := newFixture(t, nil)
	rec := httptest.NewRecorder()
	ok.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ok.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tailmate_chat_http_requests_total")

	down := newFixture(t, errors.New("no db"))
	rec = httptest.NewRecorder()
	down.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type recordingConn struct {
	id     string
	events []realtime.Event
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(evt realtime.Event) error {
	c.events = append(c.events, evt)
	return nil
}
