package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/tailmate/chat-service/config"
	"github.com/tailmate/chat-service/internal/auth"
	"github.com/tailmate/chat-service/internal/badger"
	"github.com/tailmate/chat-service/internal/postgres"
	"github.com/tailmate/chat-service/internal/ratelimit"
	"github.com/tailmate/chat-service/internal/realtime"
	"github.com/tailmate/chat-service/internal/service"
	grpcx "github.com/tailmate/chat-service/internal/transport/grpc"
	httpx "github.com/tailmate/chat-service/internal/transport/http"
	"github.com/tailmate/chat-service/internal/transport/ws"
	"github.com/tailmate/chat-service/pkg/logger"
)

type messageStore interface {
	realtime.MessageStore
	service.ConversationStore
	Ping(ctx context.Context) error
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	lg.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	store, profiles, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	// --- auth ---
	pub, err := auth.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("auth public key: %v", err)
	}
	resolver := auth.NewResolver(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.EmailClaim, cfg.Auth.ClockSkew)

	// --- relay ---
	relayOpts := []realtime.Option{
		realtime.WithLogger(lg.With("component", "relay")),
		realtime.WithMaxBodyLength(cfg.Chat.MaxBodyLength),
		realtime.WithStoreTimeout(cfg.Chat.StoreTimeout),
	}
	if cfg.Chat.RateLimit.Messages > 0 {
		limiter, err := ratelimit.New(ctx, cfg.Redis.URL, cfg.Chat.RateLimit.Messages, cfg.Chat.RateLimit.Window)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer func() { _ = limiter.Close() }()
		relayOpts = append(relayOpts, realtime.WithLimiter(limiter))
		lg.Info("send rate limit enabled",
			"messages", cfg.Chat.RateLimit.Messages, "window", cfg.Chat.RateLimit.Window)
	}
	relay := realtime.NewRelay(store, relayOpts...)

	// --- services ---
	chatSvc := service.NewChatService(store, profiles, cfg.Chat.HistoryLimit, lg.With("component", "chat"))

	// --- WS ---
	wsServer := ws.NewServer(relay, resolver, ws.Options{
		PingEvery:      cfg.Chat.PingEvery,
		SendBuffer:     cfg.Chat.SendBuffer,
		MaxFrameBytes:  cfg.Chat.MaxFrameBytes,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
		Logger:         lg.With("component", "ws"),
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(chatSvc, relay),
		WS:             wsServer,
		Resolver:       resolver,
		Health:         store,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(lg)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor(lg)),
	)
	healthSrv := grpcx.NewHealth(store, 0, lg.With("component", "health"))
	healthSrv.Register(grpcServer)
	go healthSrv.Run(ctx)

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		lg.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		lg.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		lg.Info("shutdown signal")
	case err := <-errCh:
		lg.Error("server error", "err", err)
	}
	stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		lg.Warn("http shutdown", "err", err)
	}
	lg.Info("stopped")
}

// openStore returns the configured message store; profiles are only available with postgres.
func openStore(ctx context.Context, cfg *config.Config, lg *slog.Logger) (messageStore, service.ProfileLookup, func(), error) {
	switch cfg.Store.Driver {
	case "badger":
		st, err := badger.Open(cfg.Badger.Path, lg.With("component", "badger"))
		if err != nil {
			return nil, nil, nil, err
		}
		lg.Info("badger store opened", "path", cfg.Badger.Path)
		return st, nil, closer(lg, "badger", st), nil

	default:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:               cfg.Postgres.DSN,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
			ApplicationName:   cfg.Postgres.ApplicationName,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Postgres.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, nil, err
			}
			lg.Info("postgres schema applied")
		}
		return postgres.NewMessageRepository(db.Pool), postgres.NewProfileRepository(db.Pool), db.Close, nil
	}
}

func closer(lg *slog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			lg.Warn("close failed", "resource", name, "err", err)
		}
	}
}
