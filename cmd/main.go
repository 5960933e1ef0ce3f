/*
Package main is the entry point for the dmchat server.

It loads configuration, initializes the global logging system, opens the configured store,
builds the realtime core (router, presence, sessions, dispatcher), optionally joins the
Redis relay, serves HTTP and shuts everything down on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmchat/internal/app/boltdb"
	"dmchat/internal/app/bus"
	"dmchat/internal/app/chat"
	"dmchat/internal/app/db"
	"dmchat/internal/app/message"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
	"dmchat/internal/handler"
	"dmchat/internal/pkg/logx"
)

// openStores returns the message and user stores for the configured driver and a func
// releasing them.
func openStores(ctx context.Context, cfg *configs.AppConfig) (message.Store, user.Store, func(), error) {
	switch cfg.StoreDriver {
	case configs.StoreDriverBolt:
		bdb, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return bdb.Messages(), bdb.Users(), func() { _ = bdb.Close() }, nil

	case configs.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.NewMessageStore(pool), db.NewUserStore(pool), pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("relay", cfg.RedisURL != "").
		Bool("storage", cfg.StorageEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages, users, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store", "driver", cfg.StoreDriver)
	}
	defer closeStores()

	var storageService storage.StorageService
	if cfg.StorageEnabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			BucketName:      cfg.S3BucketName,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	}

	router := chat.NewRouter()
	presence := chat.NewPresence()

	var out chat.Broadcaster = router
	if cfg.RedisURL != "" {
		rdb, err := bus.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logx.Fatal(err, "Failed to connect to Redis")
		}
		defer rdb.Close()

		relay := bus.NewRelay(rdb, router)
		out = relay

		go func() {
			if err := relay.Run(ctx); err != nil {
				logx.Error(err, "Relay subscription ended")
			}
		}()
	}

	deps := &handler.AppDeps{
		Config:         cfg,
		Users:          users,
		Messages:       messages,
		Presence:       presence,
		Sessions:       chat.NewSessions(router, presence, users, out),
		Dispatcher:     chat.NewDispatcher(messages, users, out, chat.WithMaxTextBytes(cfg.MaxTextBytes)),
		StorageService: storageService,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(ctx, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("dmchat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	router.Shutdown()

	logx.Info("Server gracefully stopped.")
}
