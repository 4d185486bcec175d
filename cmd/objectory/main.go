package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/erazemk/objectory/internal/api"
	"github.com/erazemk/objectory/internal/config"
	"github.com/erazemk/objectory/internal/db"
	"github.com/erazemk/objectory/internal/metrics"
	"github.com/erazemk/objectory/internal/store"
	"github.com/erazemk/objectory/internal/viewer"
	"github.com/erazemk/objectory/internal/web"
)

// redisPrefix namespaces Objectory's keys in a shared Redis.
const redisPrefix = "objectory:"

// levelRouter is a slog.Handler that routes records below ERROR to stdout
// and ERROR+ to stderr.
type levelRouter struct {
	level  slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also written to that file. The returned cleanup closes it.
func setupLogger(logPath string, level slog.Level) (func(), error) {
	opts := &slog.HandlerOptions{Level: level}

	cleanup := func() {}

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		level:  level,
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Validate has already checked the level name.
	level, _ := config.ParseLevel(cfg.LogLevel)
	closeLog, err := setupLogger(cfg.LogFile, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.ConfigPath != "" {
		slog.Info("config loaded", "path", cfg.ConfigPath)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	var kv store.KV
	switch cfg.Storage {
	case config.StorageRedis:
		rkv, err := store.OpenRedisKV(ctx, cfg.RedisURL, redisPrefix)
		if err != nil {
			return err
		}
		defer rkv.Close()
		kv = rkv
		slog.Info("collection stored in redis")
	default:
		kv = store.NewSQLiteKV(database)
		slog.Info("collection stored in sqlite")
	}

	m := metrics.New(otel.GetMeterProvider())

	collection, err := store.OpenCollection(ctx, kv, store.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("opening collection: %w", err)
	}
	slog.Info("collection loaded", "items", len(collection.List()))

	shareSecret := cfg.ShareSecret
	if shareSecret == "" {
		// Generated on first run and kept in the database.
		shareSecret, err = store.GetShareSecret(ctx, database)
		if err != nil {
			return fmt.Errorf("getting share secret: %w", err)
		}
	}

	hub := viewer.NewHub(api.CheckOrigin(cfg.AllowedOrigins))

	apiRouter := api.NewRouter(api.Options{
		DB:          database,
		Collection:  collection,
		Hub:         hub,
		ShareSecret: shareSecret,
		ShareTTL:    cfg.ShareTTL,
		PublicURL:   cfg.PublicURL,
		Capture:     cfg.Capture,
		Metrics:     m,
	})
	webRouter, err := web.NewRouter(database, collection)
	if err != nil {
		return fmt.Errorf("setting up web router: %w", err)
	}

	// API and share links take priority, web pages handle the rest.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("/v/", apiRouter)
	mux.Handle("/", webRouter)

	// No WriteTimeout: viewer connections are long-lived and video downloads
	// may be slow.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Chain(cfg.AllowedOrigins).Then(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server.RegisterOnShutdown(hub.CloseAll)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "public_url", cfg.PublicURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
