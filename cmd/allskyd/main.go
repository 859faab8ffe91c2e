package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"allskyd/internal/api"
	"allskyd/internal/camera"
	"allskyd/internal/catalog"
	"allskyd/internal/config"
	"allskyd/internal/core"
	"allskyd/internal/logging"
	allskymcp "allskyd/internal/mcp"
	"allskyd/internal/notify"
	"allskyd/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// stdout carries the MCP protocol in mcp/both modes
	var logger *slog.Logger
	if cfg.Mode == "http" {
		logger = logging.New(cfg.LogLevel)
	} else {
		logger = logging.NewStderr(cfg.LogLevel)
	}

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, cfg.HistoryKeep)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			logger.Error("configure webhook", "err", err)
			os.Exit(1)
		}
		notifier = webhook
	}

	driver := camera.WithRetry(camera.NewSimDriver(cfg.Camera.ADUPerMs))
	scheduler := core.NewScheduler(storeInst, driver, notifier, logger, cfg.ImageDir)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if err := scheduler.Init(ctx); err != nil {
		logger.Error("init scheduler", "err", err)
		os.Exit(1)
	}

	maintenance, err := core.StartMaintenance(storeInst, logger)
	if err != nil {
		logger.Error("start maintenance", "err", err)
		os.Exit(1)
	}
	defer maintenance.Stop()

	cat := catalog.New(cfg.ImageDir)

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, storeInst, scheduler, cat, logger)
	case "mcp":
		runMCPMode(storeInst, scheduler, cat, logger, cancel)
	case "both":
		runBothMode(cfg, storeInst, scheduler, cat, logger)
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, store *store.Store, scheduler *core.Scheduler, cat *catalog.Catalog, logger *slog.Logger) {
	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, store, scheduler, cat, logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(cfg, server, scheduler, logger)
}

// runMCPMode starts only the MCP server on stdio.
func runMCPMode(store *store.Store, scheduler *core.Scheduler, cat *catalog.Catalog, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := allskymcp.NewMCPServer(store, scheduler, cat, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
	}()

	// Run MCP server (blocking)
	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, store *store.Store, scheduler *core.Scheduler, cat *catalog.Catalog, logger *slog.Logger) {
	mcpServer := allskymcp.NewMCPServer(store, scheduler, cat, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, store, scheduler, cat, logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(cfg, server, scheduler, logger)
	logger.Info("shutdown complete")
}

func shutdown(cfg *config.Config, server *api.Server, scheduler *core.Scheduler, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	// Stop the worker but keep the persisted run intent so the loop resumes
	// on the next start.
	if err := scheduler.Shutdown(shutdownCtx); err != nil && !errors.Is(err, core.ErrNotRunning) {
		logger.Error("scheduler stop", "err", err)
	}
}
