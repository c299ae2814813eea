package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmw "github.com/tailmate/chat-service/internal/transport/http/middleware"
	"github.com/tailmate/chat-service/internal/transport/ws"
	"github.com/tailmate/chat-service/pkg/httputil"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Handler        *Handler
	WS             *ws.Server
	Resolver       httpmw.TokenResolver
	Health         Pinger
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.Metrics)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{httputil.HeaderRequestID},
		MaxAge:         300,
	}))

	// WS endpoint, authenticated by access_token
	r.Get("/ws", d.WS.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Resolver))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/conversations", d.Handler.ListConversations)
		pr.Get("/conversations/{identity}/messages", d.Handler.GetHistory)
		pr.Post("/conversations/{identity}/messages", d.Handler.SendMessage)
		pr.Post("/messages/read", d.Handler.MarkRead)
		pr.Get("/presence/{identity}", d.Handler.GetPresence)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health.Ping(r.Context()); err != nil {
				httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "store unavailable", nil)
				return
			}
		}
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	return r
}
