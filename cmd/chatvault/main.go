package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/user/chatvault/internal/adapter/api"
	"github.com/user/chatvault/internal/adapter/api/handler"
	"github.com/user/chatvault/internal/adapter/connector"
	"github.com/user/chatvault/internal/adapter/helix"
	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/adapter/repository/postgres"
	redisrepo "github.com/user/chatvault/internal/adapter/repository/redis"
	"github.com/user/chatvault/internal/pkg/config"
	"github.com/user/chatvault/internal/pkg/logger"
	"github.com/user/chatvault/internal/reconciler"
	"github.com/user/chatvault/internal/staging"
	"github.com/user/chatvault/internal/usecase"
	"github.com/user/chatvault/internal/writer"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting chatvault")

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// --- Optional Redis Lookup Cache ---
	var cache helix.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not connect to redis, user id lookups will not be cached", "error", err)
		} else {
			cache = redisrepo.NewLookupCache(redisClient, log)
			log.Info("connected to redis")
		}
	}

	// --- Repositories and Twitch Clients ---
	messageRepo := postgres.NewMessageRepository(db, log)
	streamRepo := postgres.NewStreamRepository(db, log)
	helixClient := helix.New(cfg.HelixClientID, cfg.HelixToken, cache, log)

	// --- Use Cases ---
	buffer := staging.NewBuffer()
	ingestUseCase := usecase.NewIngestUseCase(buffer, log, m)
	logsUseCase := usecase.NewLogsUseCase(messageRepo, buffer, log)
	directoryUseCase := usecase.NewDirectoryUseCase(messageRepo, helixClient, log)

	// --- Background Workers ---
	var workers sync.WaitGroup

	w := writer.New(buffer, messageRepo, streamRepo, log, m, cfg.FlushInterval, cfg.StreamQueueSize)
	workers.Add(1)
	go func() {
		defer workers.Done()
		w.Run(ctx)
	}()

	rec := reconciler.New(helixClient, w, log, m, cfg.StreamsRequestInterval)
	workers.Add(1)
	go func() {
		defer workers.Done()
		rec.Run(ctx)
	}()

	// --- Chat Connector ---
	chat := connector.New(ingestUseCase, log)

	channels := make([]string, 0, len(cfg.ChannelIDs))
	if len(cfg.ChannelIDs) > 0 {
		names, err := directoryUseCase.NamesByID(ctx, cfg.ChannelIDs)
		if err != nil {
			log.Error("failed to resolve configured channel ids", "error", err)
			os.Exit(1)
		}
		for _, id := range cfg.ChannelIDs {
			if login, ok := names[id]; ok {
				channels = append(channels, login)
			} else {
				log.Warn("skipping unknown channel id", "channel_id", id)
			}
		}
	}

	go func() {
		if err := chat.Start(ctx, channels); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("chat connector failed", "error", err)
			stop()
		}
	}()
	log.Info("chat connector starting", "channels", len(channels))

	// --- HTTP Server ---
	logsHandler := handler.NewLogsHandler(logsUseCase, directoryUseCase, streamRepo, log)
	adminHandler := handler.NewAdminHandler(chat, directoryUseCase, log)
	router := api.NewRouter(logsHandler, adminHandler, cfg.AdminAPIKey, log)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	// The writer's final flush must complete before the process exits.
	workers.Wait()

	log.Info("shut down gracefully")
}
