package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm_router/internal/config"
	"llm_router/internal/httpapi"
	"llm_router/internal/logging"
)

func main() {
	defer logging.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	deps, err := httpapi.NewDependencies(cfg)
	if err != nil {
		logging.Fatalf("Failed to initialize dependencies: %v", err)
	}

	addr := ":" + cfg.HTTP.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(deps, cfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logging.Infof("LLM router listening on %s (env=%s, storage=%s)", addr, cfg.Environment, cfg.Database.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// in-flight requests finish their metering commit before Shutdown returns
	if err := server.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}

	if err := deps.Close(); err != nil {
		logging.Errorf("Failed to release resources: %v", err)
	}

	logging.Infof("Server exited")
}
