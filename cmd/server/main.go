package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"groupchat/internal/auth"
	"groupchat/internal/chat"
	"groupchat/internal/config"
	"groupchat/internal/database"
	"groupchat/internal/handlers"
	"groupchat/internal/metrics"
	"groupchat/internal/ratelimit"
	"groupchat/internal/websocket"
	"groupchat/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("Ignoring LOG_LEVEL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open message store: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)
	limiter := newLimiter(ctx, cfg)

	engine := chat.NewEngine(db, chat.Options{
		QueueSize:       cfg.Chat.OutboundQueueSize,
		TypingWindow:    cfg.Chat.TypingWindow,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
	})
	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		engine.Run(engineCtx)
		close(engineDone)
	}()

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	messageHandlers := handlers.NewMessageHandlers(db, engine, db)
	wsHandlers := handlers.NewWebSocketHandlers(authService, engine, limiter)
	mux := handlers.NewRouter(authHandlers, messageHandlers, wsHandlers, metrics.Handler())

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}

	// Closing every outbound queue ends the socket writers.
	stopEngine()
	<-engineDone
}

func openStore(ctx context.Context, cfg *config.Config) (database.Database, error) {
	switch cfg.Database.Driver {
	case config.DriverBadger:
		return database.NewBadgerDB(cfg.Database.BadgerPath)
	default:
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		return database.NewPostgresDB(ctx, cfg.Database.URL)
	}
}

// newLimiter returns nil when REDIS_ADDR is unset, which disables throttling.
func newLimiter(ctx context.Context, cfg *config.Config) websocket.Limiter {
	if cfg.RateLimit.RedisAddr == "" {
		logger.Info("Message rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis at %s unreachable, rate limiting fails open: %v", cfg.RateLimit.RedisAddr, err)
	}
	logger.Info("Rate limiting messages to %d per %s", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	return ratelimit.NewLimiter(client, ratelimit.MessageRule(cfg.RateLimit.Limit, cfg.RateLimit.Window))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /login")
	logger.Info("   POST /register")
	logger.Info("   POST /set-nickname")
	logger.Info("   GET  /messages")
	logger.Info("   GET  /online")
	logger.Info("   GET  /healthz")
	logger.Info("   GET  /metrics")
}
