// Alexi - companion backend server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/alexi/internal/agent"
	"github.com/ashureev/alexi/internal/api"
	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/config"
	"github.com/ashureev/alexi/internal/history"
	"github.com/ashureev/alexi/internal/identity"
	"github.com/ashureev/alexi/internal/middleware"
	"github.com/ashureev/alexi/internal/progression"
	"github.com/ashureev/alexi/internal/session"
	"github.com/ashureev/alexi/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	questions, err := loadCatalog(cfg)
	if err != nil {
		slog.Error("Failed to load question catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Question catalog loaded", "themes", questions.Len(), "questions", questions.TotalQuestions())

	engine := progression.NewEngine(questions, repo, logger)
	reader := history.NewReader(repo, cfg.History.DecryptWorkers, logger)

	// The agent is optional; without it answers are accepted as given.
	var processor agent.Processor
	if cfg.Agent.Addr != "" {
		slog.Info("Attempting to connect to agent service via gRPC", "address", cfg.Agent.Addr)
		grpcClient, err := agent.NewGrpcClient(agent.GrpcClientConfig{
			Address:        cfg.Agent.Addr,
			ConnectTimeout: cfg.Agent.ConnectTimeout,
			RequestTimeout: cfg.Agent.RequestTimeout,
		}, logger)
		if err != nil {
			slog.Warn("Failed to connect to agent, answer review and progress tracking disabled", "error", err)
		} else {
			processor = grpcClient
		}
	}
	if processor == nil {
		slog.Info("Agent features disabled (AGENT_ADDR not set or connection failed)")
	}
	svc := agent.NewService(processor, engine, reader, logger)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, cfg.HTTP.RateLimitBurst, logger)
	limiter.StartCleanup(ctx, 5*time.Minute, 30*time.Minute)

	sm := session.NewManager(logger)
	session.StartIdleReaper(ctx, sm, cfg.Session.SweepInterval, cfg.Session.IdleTTL)

	apiHandler := api.NewHandler(engine, reader, svc, logger)
	healthHandler := api.NewHealthHandler(repo, cfg.HTTP.HealthCheckTimeout)
	wsHandler := session.NewHandler(svc, engine, sm, cfg.HTTP.AllowedOrigins, cfg.IsDevelopment(), logger)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(api.Instrument)
	r.Use(middleware.CORS(cfg.HTTP.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r, limiter.Handler)

	r.Route("/ws/users/{userID}", func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Get("/session", wsHandler.ServeHTTP)
	})

	// WebSocket sessions are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("Using in-memory store, state is lost on restart")
		return store.NewMemory(), nil
	}
	return store.NewSQLite(cfg.DBPath)
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.QuestionsPath == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.QuestionsPath)
}
