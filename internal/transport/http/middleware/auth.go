package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/tailmate/chat-service/internal/domain"
	"github.com/tailmate/chat-service/pkg/httputil"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

type TokenResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// Auth requires "Authorization: Bearer <token>" and stores the resolved identity in the context.
func Auth(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || len(header) <= len("Bearer ") {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}

			identity, err := resolver.Resolve(r.Context(), strings.TrimSpace(header[len("Bearer "):]))
			if err != nil {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id
}
