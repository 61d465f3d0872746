package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chxlky/github-project-sync/api"
	"github.com/chxlky/github-project-sync/integrations"
	"github.com/chxlky/github-project-sync/internal/config"
	"github.com/chxlky/github-project-sync/internal/syncer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func newLogger() *zap.Logger {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func main() {
	logger := newLogger()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load(".")
	if err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := integrations.NewGitHubClient(ctx, cfg.GitHubToken, cfg.APIURL, cfg.UserAgent, logger)
	if err != nil {
		zap.L().Fatal("Failed to initialise GitHub client", zap.Error(err))
	}

	s := syncer.New(syncer.Options{
		Secret:       cfg.WebhookSecret,
		ProjectID:    cfg.ProjectID,
		AllowedRepos: cfg.AllowedRepos,
	}, client, client, client, logger)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Handler{Syncer: s, Logger: logger}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("projectID", cfg.ProjectID),
			zap.Strings("allowedRepos", cfg.AllowedRepos),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown initiated")
		// A second signal exits without waiting for in-flight deliveries.
		stop()
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			zap.L().Info("Second interrupt signal received. Exiting immediately.")
			os.Exit(1)
		}()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Error shutting down server", zap.Error(err))
			return err
		}
		zap.L().Info("HTTP server shut down gracefully.")
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Fatal("Server error", zap.Error(err))
	}
	zap.L().Info("Exiting...")
}
