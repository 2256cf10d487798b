// Diet Navigator chat front-end server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dietnavigator/nutrition-chat/internal/agent"
	"github.com/dietnavigator/nutrition-chat/internal/agentdef"
	"github.com/dietnavigator/nutrition-chat/internal/api"
	"github.com/dietnavigator/nutrition-chat/internal/blob"
	"github.com/dietnavigator/nutrition-chat/internal/chat"
	"github.com/dietnavigator/nutrition-chat/internal/config"
	"github.com/dietnavigator/nutrition-chat/internal/event"
	"github.com/dietnavigator/nutrition-chat/internal/identity"
	"github.com/dietnavigator/nutrition-chat/internal/middleware"
	"github.com/dietnavigator/nutrition-chat/internal/session"
	"github.com/dietnavigator/nutrition-chat/internal/store"
	"github.com/dietnavigator/nutrition-chat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"agent_transport", cfg.Agent.Transport,
		"blob_backend", cfg.Blob.Backend,
		"session_backend", cfg.Session.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	runtime, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize agent runtime client", "error", err)
		os.Exit(1)
	}
	defer runtime.Close()

	uploader, closeUploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize image uploader", "error", err)
		os.Exit(1)
	}
	defer closeUploader()

	checks := map[string]api.Pinger{}
	var provider session.Provider
	switch cfg.Session.Backend {
	case "sqlite":
		repo, err := store.NewSQLite(cfg.Session.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()
		if err := repo.Ping(ctx); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Database connected", "path", cfg.Session.DBPath)

		session.StartSweeper(ctx, repo, cfg.Session.TTL)
		provider = session.NewRepoProvider(repo)
		checks["session_store"] = repo
	default:
		provider, err = session.NewCookieProvider(cfg.Session.Secret, cfg.Session.TTL, !cfg.IsDevelopment())
		if err != nil {
			slog.Error("Failed to initialize cookie sessions", "error", err)
			os.Exit(1)
		}
	}

	policy, err := event.NewPatternPolicy(cfg.ImageBlindPattern)
	if err != nil {
		slog.Error("Invalid IMAGE_BLIND_PATTERN", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	defs, err := agentdef.Catalog(agentdef.Settings{
		ProjectID:   cfg.ProjectID,
		DatasetName: cfg.Agent.DatasetName,
		Model:       cfg.Agent.Model,
	})
	if err != nil {
		slog.Error("Failed to build agent catalog", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	chatService := chat.NewService(
		session.NewBinder(runtime, logger),
		chat.NewBuilder(uploader),
		runtime,
		policy,
		conversationLogger,
		logger,
	)
	limiter := middleware.NewVisitorLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(checks)
	agentsHandler := api.NewAgentsHandler(defs)
	homeHandler := api.NewHomeHandler(chatService, web.IndexHTML())
	chatHandler := api.NewChatHandler(chatService, cfg.MaxUploadBytes)
	socketHandler := api.NewChatSocket(chatService, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	agentsHandler.RegisterRoutes(r)
	r.Handle("/static/*", web.StaticHandler())

	// Routes bound to the visitor's session.
	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(provider))
		homeHandler.RegisterRoutes(r)
		socketHandler.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, visitorKey))
			chatHandler.RegisterRoutes(r)
		})
	})

	// Create server.
	// Streaming turns can run long, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (agent.Runtime, error) {
	if cfg.Agent.Transport == "grpc" {
		slog.Info("Connecting to agent runtime bridge via gRPC", "address", cfg.Agent.GRPCAddr)
		return agent.NewGrpcClient(cfg.Agent.GRPCAddr, logger)
	}
	return agent.NewRESTClient(ctx, agent.RESTConfig{
		Location:   cfg.Location,
		EngineName: cfg.Agent.EngineName,
	}, logger)
}

func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blob.Uploader, func(), error) {
	if cfg.Blob.Backend == "gcs" {
		u, err := blob.NewGCSUploader(ctx, cfg.Blob.Bucket, logger)
		if err != nil {
			return nil, nil, err
		}
		return u, func() {
			if err := u.Close(); err != nil {
				slog.Error("Failed to close storage client", "error", err)
			}
		}, nil
	}
	u, err := blob.NewDirUploader(cfg.Blob.LocalDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Staging uploads on local disk", "dir", cfg.Blob.LocalDir)
	return u, func() {}, nil
}

func visitorKey(r *http.Request) string {
	if id := identity.VisitorIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}
