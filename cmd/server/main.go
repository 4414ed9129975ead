package main

import (
	"context"   // Shutdown and health contexts
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // Signal numbers
	"time"      // Timeouts

	"banker_api/internal/api"            // HTTP handlers
	"banker_api/internal/app"            // Core wiring
	"banker_api/internal/cache"          // Balance cache
	"banker_api/internal/config"         // Configuration
	"banker_api/internal/db"             // Database bootstrap
	"banker_api/internal/events"         // Ledger events
	"banker_api/internal/ledger"         // Publisher interface
	"banker_api/internal/store/sqlstore" // RecordStore on gorm

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Connect to the database
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	defer db.Close(gdb)
	records := sqlstore.New(gdb)

	health := map[string]func(context.Context) error{
		"db": func(ctx context.Context) error { return db.Ping(ctx, gdb) },
	}

	// Setup Redis client when configured
	var balanceCache *cache.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		balanceCache = cache.New(redisClient, cfg.CacheTTL)
		// Test Redis connection
		if err := balanceCache.Ping(context.Background()); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		defer balanceCache.Close()
		health["redis"] = balanceCache.Ping
	}

	// Setup Kafka publisher when configured
	var publisher ledger.Publisher
	if len(cfg.KafkaAddrs) > 0 {
		kafkaPublisher := events.NewPublisher(cfg.KafkaAddrs, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logrus.WithFields(logrus.Fields{
			"brokers": cfg.KafkaAddrs, // Kafka brokers
			"topic":   cfg.KafkaTopic, // Ledger topic
		}).Info("Publishing ledger entries")
	}

	services := app.NewServices(cfg, records, publisher)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(&api.Deps{
		Gate:      services.Gate,
		Apps:      services.Apps,
		Accounts:  services.Accounts,
		Transfers: services.Transfers,
		Invoices:  services.Invoices,
		Ledger:    services.Ledger,
		Cache:     balanceCache,
		OpTimeout: cfg.OpTimeout,
		Health:    health,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort, // Listen on cfg.AppPort
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful Shutdown
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("failed to serve: %v", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("forced shutdown: %v", err)
	}
	logrus.Info("Server exited")
}
