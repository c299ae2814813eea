package httputil_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/pkg/httputil"
)

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidMessage:                            http.StatusBadRequest,
		fmt.Errorf("wrap: %w", domain.ErrInvalidCursor):     http.StatusBadRequest,
		domain.ErrInvalidToken:                              http.StatusUnauthorized,
		domain.ErrRateLimited:                               http.StatusTooManyRequests,
		fmt.Errorf("%w: boom", domain.ErrStoreUnavailable): http.StatusServiceUnavailable,
		errors.New("unexpected"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, httputil.StatusOf(err), err.Error())
	}
}

func TestRequestIDPropagatedAndGenerated(t *testing.T) {
	var seen string
	h := httputil.MiddlewareRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httputil.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(httputil.HeaderRequestID, "abc")
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", rec.Header().Get(httputil.HeaderRequestID))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.NotEqual(t, "abc", seen)
}

func TestFailHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Fail(context.Background(), rec, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Internal Server Error", body.Error.Message)
}

func TestFailShowsClientErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Fail(context.Background(), rec, fmt.Errorf("%w: empty body", domain.ErrInvalidMessage))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid message: empty body")
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := httputil.MiddlewareLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
