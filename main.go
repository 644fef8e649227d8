package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tigdiff/internal/api"
	"tigdiff/internal/config"
	"tigdiff/internal/logging"
	"tigdiff/internal/middleware"
	"tigdiff/internal/parcel"
)

func main() {
	configPath := flag.String("config", "", "config file (default .tigdiff.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Repository, blob caches and report storage
	p, err := parcel.Open(cfg, logger.Logger, parcel.Options{Persist: true})
	if err != nil {
		logger.Fatal("failed to open repository", zap.Error(err))
	}
	defer p.Close()

	// Initialize handlers
	rewritesHandler := api.NewRewritesHandler(p.Detector, p.Reports, p.Defaults, logger)
	reportHandler := api.NewReportHandler(p.Reports)

	// Set up router
	mux := http.NewServeMux()
	api.Routes(mux, rewritesHandler, reportHandler, api.HealthHandler(p.Root, p.Cache))

	// Apply middleware, outermost last
	handler := middleware.Chain(
		mux,
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	// Start server
	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("repository", p.Root),
		zap.String("environment", cfg.Environment))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
	}
}
