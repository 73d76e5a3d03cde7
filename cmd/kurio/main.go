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

	"github.com/kurious/kurio/internal/api"
	"github.com/kurious/kurio/internal/auth"
	"github.com/kurious/kurio/internal/chat"
	"github.com/kurious/kurio/internal/config"
	"github.com/kurious/kurio/internal/model"
	"github.com/kurious/kurio/internal/registry"
	"github.com/kurious/kurio/internal/store"
	"github.com/kurious/kurio/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting kurio...", zap.String("env", cfg.Env))

	// User store with migrations.
	pgStore, err := store.New(context.Background(), cfg.DatabaseURL(), logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pgStore.Close()
	if err := pgStore.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Token verification against the auth provider.
	validator, err := auth.NewValidator(context.Background(), auth.Options{
		JWKSURL:           cfg.AuthJWKSURL,
		Secret:            cfg.AuthJWTSecret,
		Issuer:            cfg.AuthIssuer,
		Audience:          cfg.AuthAudience,
		AuthorizedParties: cfg.AuthAuthorizedParties,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialise auth", zap.Error(err))
	}

	// Inference and tool registry clients; credentials stay inside config.
	completer := model.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModelName, logger)
	tools := registry.NewClient(cfg.ToolRegistryURL, logger)

	chatSvc := chat.NewService(cfg.CheckpointURL(), completer, tools, logger)
	userSvc := user.NewService(pgStore, logger)

	handler := api.NewHandler(chatSvc, pgStore, userSvc, validator, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("kurio listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down kurio...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.Debug() {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = lvl
	}
	logger, _ := zcfg.Build()
	return logger
}
