package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/config"
	"github.com/webmon/webmon/internal/httpapi"
	"github.com/webmon/webmon/internal/httpapi/middleware"
	"github.com/webmon/webmon/internal/logging"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/registry"
	"github.com/webmon/webmon/internal/repo/files"
	"github.com/webmon/webmon/internal/supervisor"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.DataDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	reg := registry.New(cfg, logger)
	sup := supervisor.New(cfg, logger, reg)
	store := files.New(cfg)
	checker := probe.NewHTTPChecker(cfg.Timeout, cfg.UserAgent, cfg.SuccessCodes)

	api := httpapi.NewServer(logger, reg, sup, store, checker)
	keys := middleware.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.RateLimitPerMin, cfg.RateLimitBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_serve_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("api_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_dirty", zap.Error(err))
	}
}
