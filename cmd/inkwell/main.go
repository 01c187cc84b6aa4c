// Package main is the entry point for the inkwell server.
//
// inkwell is a small blog: posts, comments, reactions and profile pictures,
// stored as CSV tables and image files under a root directory and served
// over a JSON HTTP API. Settings come from an optional config.yaml; flags
// given on the command line take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/maruel/inkwell/internal/server"
	"github.com/maruel/inkwell/internal/server/ratelimit"
	"github.com/maruel/inkwell/internal/storage"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "inkwell: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "config.yaml", "Path to the optional YAML configuration file")
	root := flag.String("root", "", "Directory holding data/ and uploads/")
	httpAddr := flag.String("http", "", "Address to listen on (e.g., localhost:8080, :8080)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Also write logs to this file, rotated")
	history := flag.Bool("history", false, "Commit every table rewrite to a git repository in the root directory")
	watch := flag.Bool("watch", false, "Reload tables modified by other processes")
	prune := flag.Bool("prune", false, "Delete unreferenced uploads and exit")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["root"] {
		cfg.Root = *root
	}
	if set["http"] {
		cfg.HTTP = *httpAddr
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["log-file"] {
		cfg.LogFile.Path = *logFile
	}
	if set["history"] {
		cfg.History.Enabled = *history
	}
	if set["watch"] {
		cfg.Watch = *watch
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	logger, closeLog := newLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	var opts []storage.Option
	if cfg.History.Enabled {
		h, err := storage.OpenHistory(cfg.Root, cfg.History.Name, cfg.History.Email)
		if err != nil {
			return err
		}
		n, err := h.Count()
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		slog.InfoContext(ctx, "History enabled", "dir", cfg.Root, "commits", n)
		opts = append(opts, storage.WithHistory(h))
	}
	svc, err := storage.NewRecordService(cfg.Root, opts...)
	if err != nil {
		return err
	}
	if err := svc.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", cfg.Root, err)
	}

	if *prune {
		n, err := svc.PruneBlobs(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Pruned uploads", "removed", n)
		return nil
	}

	if cfg.Watch {
		if err := svc.Cache().Watch(ctx, filepath.Join(svc.Root(), storage.DataDir)); err != nil {
			return fmt.Errorf("failed to watch tables: %w", err)
		}
	}

	var limiter *ratelimit.Limiter
	if rl := cfg.RateLimits; rl.WriteRatePerMin > 0 {
		limiter = ratelimit.NewLimiter(rl.WriteRatePerMin, time.Minute, max(rl.WriteBurst, 1))
		defer limiter.Close()
	}

	addr := cfg.HTTP
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	buildVersion, _, _, _ := getBuildInfo()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, buildVersion, limiter),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "root", svc.Root(), "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}
