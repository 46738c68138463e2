package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"

	"coffee-booking-backend/config"
	"coffee-booking-backend/internal/api"
	"coffee-booking-backend/internal/booking"
	"coffee-booking-backend/internal/db"
	"coffee-booking-backend/internal/invitation"
	"coffee-booking-backend/internal/lark"
	"coffee-booking-backend/internal/live"
	"coffee-booking-backend/internal/notification"
	"coffee-booking-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "coffee-booking ", log.LstdFlags)

	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		logger.Fatalf("failed to load environment files: %v", err)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primary, err := openStore(ctx, &cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	appStore := store.WithFallback(primary, time.Duration(cfg.Database.FallbackCacheMinutes)*time.Minute)
	logger.Printf("%s data store initialized", cfg.Database.Driver)

	var (
		sinks     []notification.Sink
		cards     invitation.CardSender
		larkAPI   *lark.Client
		webpushOp *webpush.Options
	)
	if cfg.Lark.Enabled() {
		larkAPI = lark.NewClient(cfg.Lark)
		sinks = append(sinks, larkAPI)
		cards = larkAPI
		logger.Println("lark app notifications enabled")
	} else {
		logger.Println("lark app credentials not set; invitations are disabled")
	}
	if cfg.Lark.WebhookURL != "" {
		sinks = append(sinks, lark.NewWebhookSink(cfg.Lark.WebhookURL))
		logger.Println("lark webhook notifications enabled")
	}
	if cfg.Push.Enabled() {
		webpushOp = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		sinks = append(sinks, notification.NewWebPushSink(appStore, webpushOp))
		logger.Println("web push notifications enabled")
	}

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, notification.RetryPolicy{
		MaxAttempts:    cfg.WorkerPool.MaxAttempts,
		InitialBackoff: cfg.WorkerPool.InitialBackoff(),
		MaxBackoff:     cfg.WorkerPool.MaxBackoff(),
	}, appStore, sinks...)
	pool.Start(ctx)

	hub := live.NewHub(cfg.Server.AllowedOrigins)

	bookings := booking.NewService(appStore, pool, booking.Options{
		SlotNames:   cfg.Booking.SlotNames,
		Location:    cfg.Booking.Location,
		AdminDigest: cfg.Admin.PasswordDigest,
		Live:        hub,
	})

	// Outcome notices go back to the default sender only if it is a user.
	defaultSender := ""
	if cfg.Lark.ReceiveIDType == "open_id" {
		defaultSender = cfg.Lark.ReceiveID
	}
	invitations := invitation.NewService(appStore, cards, pool, defaultSender)

	if larkAPI != nil && cfg.Lark.CallbacksEnabled() {
		listener := lark.NewListener(cfg.Lark.AppID, cfg.Lark.AppSecret, invitations)
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("lark callback listener stopped: %v", err)
			}
		}()
	}

	// Initialize router
	handler := api.NewHandler(bookings, invitations, appStore, hub, webpushOp)
	router := api.NewRouter(handler, cfg.Server, cfg.Lark)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.WithCORS(router, cfg.Server.AllowedOrigins),
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}

	cancel()
	pool.Wait()
	if err := appStore.Close(); err != nil {
		logger.Printf("failed to close store: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// openStore connects the backend selected by cfg.Driver.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return store.NewRedisStore(rdb, cfg.RedisKeyPrefix), nil
	}

	gormDB, err := db.Init(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(gormDB), nil
}
