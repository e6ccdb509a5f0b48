package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"phyrisk/internal/bootstrap"
	"phyrisk/internal/config"
	"phyrisk/internal/platform/logger"
	httptransport "phyrisk/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	zlog, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("bootstrap failed", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			zlog.Warn("close resources failed", zap.Error(err))
		}
	}()

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(server, zlog)
}

func waitForShutdown(server *http.Server, zlog *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zlog.Info("server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("server shutdown failed", zap.Error(err))
	}
}
