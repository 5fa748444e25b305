// Package main is the entry point for the ltcatalog product catalog server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ltcatalog/ltcatalog/internal/catalog"
	"github.com/ltcatalog/ltcatalog/internal/codegen"
	"github.com/ltcatalog/ltcatalog/internal/config"
	"github.com/ltcatalog/ltcatalog/internal/logging"
	"github.com/ltcatalog/ltcatalog/internal/metrics"
	"github.com/ltcatalog/ltcatalog/internal/server"
	"github.com/ltcatalog/ltcatalog/internal/store"
)

func main() {
	configPath := flag.String("config", "ltcatalog.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config, PORT or 3000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	engine := flag.String("engine", "", "product store: sqlite, memory, postgres, dynamodb, firestore, cosmos, sheets")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *engine != "" {
		cfg.Metadata.Engine = *engine
	}
	if *dbPath != "" {
		cfg.Metadata.SQLite.Path = *dbPath
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	productStore, err := store.Open(context.Background(), &cfg.Metadata)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize product store: %v\n", err)
		os.Exit(1)
	}
	defer productStore.Close()
	slog.Info("Product store initialized", "engine", cfg.Metadata.Engine)

	allocator := codegen.NewAllocator(codegen.Options{
		MaxAttempts: cfg.Allocator.MaxAttempts,
		SpaceSize:   cfg.Allocator.SpaceSize,
	})
	svc := catalog.NewService(productStore, allocator,
		catalog.WithCommitAttempts(cfg.Allocator.CommitAttempts),
		catalog.WithMetrics(cfg.Observability.Metrics),
	)

	srv, err := server.New(cfg, server.WithCatalog(svc))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ltcatalog listening", "addr", addr,
			"max_attempts", cfg.Allocator.MaxAttempts, "space_size", cfg.Allocator.SpaceSize)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
			productStore.Close()
			os.Exit(1)
		}
	}
}
