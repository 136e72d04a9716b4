/*
Package main is the entry point for the fullchat server.

It is responsible for loading configuration, initializing the global logging system,
connecting to PostgreSQL (running migrations), wiring the account, message store and chat
services, setting up the HTTP server, and gracefully handling operating system interrupt
signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fullchat/internal/app/account"
	"fullchat/internal/app/chat"
	"fullchat/internal/app/db"
	dbc "fullchat/internal/app/db/sqlc"
	"fullchat/internal/app/store"
	"fullchat/internal/configs"
	"fullchat/internal/handler"
	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.LogLevel, cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("send_queue_size", cfg.SendQueueSize).
		Dur("idle_timeout", cfg.IdleTimeout).
		Str("anonymous_policy", cfg.AnonymousPolicy).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN, db.PoolOptions{})
	if err != nil {
		logx.Fatal(err, "Failed to initialize database")
	}
	defer pool.Close()

	queries := dbc.New(pool)
	accounts := account.NewService(queries, 0)
	messages := store.NewMessageStore(queries, store.Options{
		MaxMessageLength: cfg.MaxMessageLength,
		HistoryLimit:     cfg.HistoryLimit,
	})

	if cfg.SeedDemoData() {
		if _, err := store.SeedDemoData(ctx, accounts, messages); err != nil {
			logx.Error(err, "Failed to seed demo data")
		}
	}

	// Initialize the chat service
	service := chat.NewService(jwt.NewVerifier(cfg.SessionSecret, accounts), messages, chat.Options{
		SendQueueSize:   cfg.SendQueueSize,
		IdleTimeout:     cfg.IdleTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		AnonymousPolicy: cfg.Policy,
	})

	limiters := handler.NewLimiters()
	defer limiters.Stop()

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Chat:     service,
		Accounts: accounts,
		Config:   cfg,
		Limiters: limiters,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("fullchat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Hijacked WebSocket connections are not tracked by the HTTP server, so close them first.
	if err := service.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Chat connections did not drain in time")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
