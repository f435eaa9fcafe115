package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/firesafely/marketplace/internal/alerts"
	"github.com/firesafely/marketplace/internal/dashboard"
	"github.com/firesafely/marketplace/internal/session"
	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/config"
	apperrors "github.com/firesafely/marketplace/pkg/errors"
	"github.com/firesafely/marketplace/pkg/logger"
	"github.com/firesafely/marketplace/pkg/resilience"
)

const (
	serviceName = "professional-dashboard"
	version     = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting professional dashboard", zap.String("version", version))

	// Initialize Sentry (no-op without a DSN)
	if err := apperrors.InitSentry(apperrors.DefaultSentryConfig()); err != nil {
		log.Warn("Failed to initialize Sentry", zap.Error(err))
	}
	defer apperrors.Flush(2 * time.Second)

	// Marketplace API client
	opts := []apiclient.Option{}
	if cfg.Upstream.RetryEnabled {
		opts = append(opts, apiclient.WithDefaultRetry())
	}
	if cfg.Resilience.CircuitBreaker.Enabled {
		breaker := resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "marketplace-api",
			Interval:         time.Duration(cfg.Resilience.CircuitBreaker.IntervalSeconds) * time.Second,
			Timeout:          time.Duration(cfg.Resilience.CircuitBreaker.TimeoutSeconds) * time.Second,
			FailureThreshold: uint32(cfg.Resilience.CircuitBreaker.FailureThreshold),
			SuccessThreshold: uint32(cfg.Resilience.CircuitBreaker.SuccessThreshold),
		}, resilience.NoopFallback)
		opts = append(opts, apiclient.WithBreaker(breaker))
	}
	client := apiclient.NewClient(cfg.Upstream.BaseURL,
		time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second, opts...)

	registry := dashboard.NewRegistry(client, alerts.LogNotifier{})

	// Redis-backed session persistence, when enabled
	if cfg.Redis.Enabled {
		store, err := session.NewRedisStore(&cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		registry.WithPersistence(store)
		registry.Restore(context.Background())
		log.Info("Connected to Redis", zap.String("addr", cfg.Redis.RedisAddr()))
	}

	handler := dashboard.NewHandler(registry)
	router := dashboard.NewRouter(cfg, handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
