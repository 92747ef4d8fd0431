package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/keisoku/internal/auth"
	"github.com/ashita-ai/keisoku/internal/config"
	"github.com/ashita-ai/keisoku/internal/model"
	"github.com/ashita-ai/keisoku/internal/ratelimit"
	"github.com/ashita-ai/keisoku/internal/server"
	"github.com/ashita-ai/keisoku/internal/service/analytics"
	"github.com/ashita-ai/keisoku/internal/service/ingest"
	"github.com/ashita-ai/keisoku/internal/storage"
	"github.com/ashita-ai/keisoku/internal/telemetry"
	"github.com/ashita-ai/keisoku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("KEISOKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("keisoku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate real
	// failures (not "already exists").
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Create services.
	ingestSvc := ingest.New(db, logger)
	analyticsSvc := analytics.New(db, db, logger)

	// Create rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitRPM > 0 {
		limiter = ratelimit.NewWindowLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst, time.Minute)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: fixed window (in-process)",
			"rpm", cfg.RateLimitRPM, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	handlers := server.NewHandlers(server.HandlersDeps{
		Agents:              db,
		Pinger:              db,
		JWTMgr:              jwtMgr,
		IngestSvc:           ingestSvc,
		AnalyticsSvc:        analyticsSvc,
		Logger:              logger,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		JWTMgr:       jwtMgr,
		Logger:       logger,
		Limiter:      limiter,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Seed the admin agent. Non-fatal: an existing deployment already has one.
	if err := seedAdmin(ctx, db, cfg); err != nil {
		slog.Warn("admin seed failed", "error", err)
	}

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("keisoku shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("keisoku stopped")
	return nil
}

// seedAdmin ensures the default org exists and registers an "admin" agent
// with the configured API key. Skipped when no key is configured or an
// admin agent is already registered.
func seedAdmin(ctx context.Context, db *storage.DB, cfg config.Config) error {
	if cfg.AdminAPIKey == "" {
		slog.Info("admin seed skipped (no KEISOKU_ADMIN_API_KEY)")
		return nil
	}

	orgID, err := db.EnsureDefaultOrg(ctx, cfg.DefaultOrgName)
	if err != nil {
		return err
	}

	if _, err := db.GetAgentsByAgentIDGlobal(ctx, "admin"); err == nil {
		slog.Info("admin agent already registered")
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := auth.HashAPIKey(cfg.AdminAPIKey)
	if err != nil {
		return err
	}
	if _, err := db.CreateAgent(ctx, orgID, "admin", model.RoleAdmin, hash); err != nil {
		return err
	}
	slog.Info("admin agent seeded", "org", cfg.DefaultOrgName)
	return nil
}
