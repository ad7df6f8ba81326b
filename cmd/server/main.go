package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"textreply/backend/pkg/config"
	"textreply/backend/pkg/di"
	"textreply/backend/pkg/health"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/router"
	"textreply/backend/pkg/secrets"
	"textreply/backend/shared/observability"
)

func main() {
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", cfg.Server.Version, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Vault.Enabled {
		vault, err := secrets.NewVaultManager(secrets.VaultConfig{
			Address:     cfg.Vault.Address,
			Token:       cfg.Vault.Token,
			Namespace:   cfg.Vault.Namespace,
			Mount:       cfg.Vault.Mount,
			SecretsPath: cfg.Vault.SecretsPath,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
		}, log)
		if err != nil {
			log.LogError(err, "Failed to initialize Vault")
			os.Exit(1)
		}
		cfg.ApplySecrets(ctx, vault)
	} else {
		cfg.ApplySecrets(ctx, secrets.EnvManager{})
	}

	if cfg.Facebook.VerifyToken == "" {
		log.Warn("FB_VERIFY_TOKEN is empty, webhook verification will always fail")
	}
	if cfg.Gemini.APIKey == "" {
		log.Warn("GEMINI_API_KEY is empty, every reply will be the fallback message")
	}

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(flushCtx)
			}()
		}
	}

	if cfg.Observability.MetricsEnabled {
		mp, err := observability.SetupMetrics(cfg.Observability.ServiceName)
		if err != nil {
			log.LogError(err, "Failed to initialize metrics")
		} else {
			defer func() { _ = mp.Shutdown(context.Background()) }()
		}
	}

	// Initialize database; the schema is owned by cmd/migrate
	db, err := config.NewDB(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := config.TestConnection(db); err != nil {
		log.LogError(err, "Database is unreachable")
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.LogError(err, "Failed to get database handle")
		os.Exit(1)
	}
	defer sqlDB.Close()

	container, err := di.New(cfg, db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Start(ctx)

	r := router.New(container)
	r.SetupRoutes()

	if port := cfg.Observability.GRPCHealthPort; port != "" {
		go func() {
			if err := health.ServeGRPC(ctx, ":"+port, container.Health, log); err != nil {
				log.LogError(err, "gRPC health server stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	// Deliveries acknowledged before shutdown still get their reply
	if err := container.Close(); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
