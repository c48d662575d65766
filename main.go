package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"bytebuddy/config"
	"bytebuddy/internal/api"
	"bytebuddy/internal/auth"
	"bytebuddy/internal/cache"
	"bytebuddy/internal/events"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/secrets"
	"bytebuddy/internal/storage"
	"bytebuddy/internal/tools"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()

	// Overlay secrets from Vault
	vaultClient, err := secrets.NewClient(cfg.Vault)
	if err != nil {
		logger.Fatal("Failed to create Vault client", "error", err)
	}
	if err := vaultClient.Apply(ctx, cfg); err != nil {
		logger.Fatal("Failed to load secrets", "error", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("No JWT secret configured")
	}

	policy, err := cfg.QuotaPolicy()
	if err != nil {
		logger.Fatal("Invalid quota policy", "error", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "driver", cfg.Database.Driver, "error", err)
	}
	defer store.Close()

	// Principal cache is optional; the server runs against the store alone
	var principalCache cache.Cache
	var healthReporter api.HealthReporter
	if cfg.Redis.Enabled {
		cacheService, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to create cache service", "error", err)
		}
		defer cacheService.Close()
		principalCache = cacheService
		healthReporter = cacheService
	}
	accounts := cache.NewAccountCache(store, principalCache, cfg.Redis.PrincipalTTL)

	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	quotaService := quota.NewService(store, policy, quota.WithEventBus(eventBus))

	authService, err := auth.NewService(accounts, auth.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenDuration:     cfg.Auth.TokenDuration,
		Issuer:            cfg.Auth.Issuer,
		BcryptCost:        cfg.Auth.BcryptCost,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	})
	if err != nil {
		logger.Fatal("Failed to initialize auth service", "error", err)
	}
	gate := auth.NewGate(authService.GetJWTManager(), accounts.Principals())

	toolService := tools.NewService(store, quotaService, tools.WithEventBus(eventBus))

	server := api.NewServer(cfg.Server, api.Deps{
		Store:    store,
		Auth:     authService,
		Gate:     gate,
		Quota:    quotaService,
		Tools:    toolService,
		EventBus: eventBus,
		Cache:    healthReporter,
		Limiter:  api.NewRateLimiter(cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow),
		Logger:   logger,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			logger.Error("Server stopped", "error", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err)
	}

	logger.Info("Shutdown complete")
}
