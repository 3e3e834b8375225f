package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fluxstore/infrastructure/config"
	"fluxstore/infrastructure/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Restore persisted transform definitions and their dependency index
	// before the trigger loop subscribes.
	if err := container.Engine.ReloadTransforms(ctx); err != nil {
		container.Logger.Fatal("Failed to reload transforms", zap.Error(err))
	}
	container.Engine.Start(ctx)
	container.Resolver.Start(ctx)

	// Hot-reloadable tunables are optional
	var watcher *config.Watcher
	if cfg.TunablesPath != "" {
		watcher, err = config.NewWatcher(cfg.TunablesPath, container.Logger)
		if err != nil {
			container.Logger.Fatal("Failed to watch tunables", zap.Error(err))
		}
		applyTunables := func(t *config.Tunables) {
			container.Engine.SetMaxCascadeDepth(t.MaxCascadeDepth)
			container.Bus.SetHistorySize(t.HistorySize)
			container.Queue.SetRetention(ctx, time.Duration(t.QueueRetentionHours)*time.Hour)
		}
		applyTunables(watcher.Current())
		watcher.OnChange(applyTunables)
		watcher.Start()
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		container.Logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("Server shutdown error", zap.Error(err))
	}

	if watcher != nil {
		watcher.Stop()
	}

	// Stop the trigger loop before closing the store so in-flight
	// executions drain against a live backend.
	cancel()
	if err := container.Shutdown(); err != nil {
		container.Logger.Error("Container shutdown error", zap.Error(err))
	}

	if err := container.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
