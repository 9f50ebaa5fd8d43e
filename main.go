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

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-canvas/pkg/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/config"
	"github.com/ekaya-inc/ekaya-canvas/pkg/database"
	"github.com/ekaya-inc/ekaya-canvas/pkg/diagram"
	"github.com/ekaya-inc/ekaya-canvas/pkg/handlers"
	"github.com/ekaya-inc/ekaya-canvas/pkg/llm"
	"github.com/ekaya-inc/ekaya-canvas/pkg/logging"
	"github.com/ekaya-inc/ekaya-canvas/pkg/mcp"
	mcpauth "github.com/ekaya-inc/ekaya-canvas/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-canvas/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-canvas/pkg/middleware"
	"github.com/ekaya-inc/ekaya-canvas/pkg/repositories"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services"
	"github.com/ekaya-inc/ekaya-canvas/pkg/services/pipeline"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("redis", cfg.Redis.Addr()),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("free_daily_limit", cfg.Quota.FreeDailyLimit))

	// Database
	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	sqlDB := db.SQLDB()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = sqlDB.Close()

	// Reservations live in Redis when configured so every replica sees them.
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis, logger)
	if err != nil {
		return err
	}
	var reservations repositories.ReservationStore
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		reservations = repositories.NewRedisReservationStore(redisClient)
		logger.Info("Quota reservations backed by Redis", zap.String("addr", cfg.Redis.Addr()))
	} else {
		reservations = repositories.NewMemoryReservationStore()
		logger.Warn("Redis not configured, quota reservations are process-local")
	}

	// Auth
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("create JWKS client: %w", err)
	}
	defer jwksClient.Close()

	if !cfg.Auth.EnableVerification && !cfg.IsLocal() {
		logger.Warn("JWT signature verification is disabled outside local development")
	}
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	mcpAuthMiddleware := mcpauth.NewMiddleware(authService, logger)

	// Model client
	llmClient, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.BreakerThreshold,
		ResetAfter: cfg.LLM.BreakerResetAfter,
	})
	modelClient := llm.NewGuardedClient(llmClient, breaker)

	// Pipeline
	validator, err := diagram.NewSchemaValidator()
	if err != nil {
		return fmt.Errorf("compile element schema: %w", err)
	}
	settings := func(temperature float64, timeout time.Duration) pipeline.ModelSettings {
		return pipeline.ModelSettings{
			Temperature: temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     timeout,
		}
	}

	generation := pipeline.NewGenerationStage(modelClient, validator,
		settings(cfg.LLM.GenerationTemperature, cfg.LLM.GenerationTimeout), logger)
	bestEffort := []pipeline.Stage{
		pipeline.NewIconEnhancementStage(modelClient, validator,
			settings(cfg.LLM.EnhancementTemperature, cfg.LLM.EnhancementTimeout),
			cfg.Pipeline.EnhancementMinElements, cfg.Pipeline.MaxIconAdditions, logger),
		pipeline.NewVerificationStage(modelClient, validator,
			settings(cfg.LLM.VerificationTemperature, cfg.LLM.VerificationTimeout),
			cfg.Pipeline.VerificationMinElements, logger),
		pipeline.NewLayoutRefinementStage(modelClient, validator,
			settings(cfg.LLM.RefinementTemperature, cfg.LLM.RefinementTimeout),
			cfg.Pipeline.RefinementMinElements, logger),
	}

	quotaService := services.NewQuotaService(
		repositories.NewUsageRepository(db),
		reservations,
		cfg.Quota,
		services.SystemClock,
		logger,
	)
	diagramService := services.NewDiagramService(quotaService, generation, bestEffort, cfg.Pipeline.CoverageWarnRatio, logger)
	normalizer := services.NewInputNormalizer(cfg.Limits, logger)

	// HTTP routes
	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)

	diagramHandler := handlers.NewDiagramHandler(normalizer, diagramService, cfg.Auth.PrivilegedRoles, cfg.Limits.MaxUploadBytes, logger)
	diagramHandler.RegisterRoutes(mux, authMiddleware)

	mcpServer := mcp.NewServer("ekaya-canvas", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), &tools.HealthToolDeps{
		Version: cfg.Version,
		Model:   cfg.LLM.Model,
		Breaker: breaker,
	})
	tools.RegisterDiagramTools(mcpServer.MCP(), &tools.DiagramToolDeps{
		Normalizer:      normalizer,
		Generator:       diagramService,
		PrivilegedRoles: cfg.Auth.PrivilegedRoles,
		Logger:          logger,
	})
	mux.Handle("/mcp", mcpServer.Handler(mcpAuthMiddleware, cfg.Limits.MaxUploadBytes))

	handler := middleware.RequestID(middleware.RequestLogger(logger)(mux))

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		useTLS := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
		logger.Info("Starting ekaya-canvas",
			zap.String("addr", addr),
			zap.Bool("tls", useTLS),
			zap.String("version", cfg.Version))

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
