package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/failedreviews/internal/config"
	"github.com/conorfennell/failedreviews/internal/failures"
	"github.com/conorfennell/failedreviews/internal/gitsource"
	"github.com/conorfennell/failedreviews/internal/render"
	"github.com/conorfennell/failedreviews/internal/report"
	"github.com/conorfennell/failedreviews/internal/storage"
	"github.com/conorfennell/failedreviews/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Failed reviews report failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	pass, err := failures.ParsePassRule(cfg.Report.Pass)
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	path := cfg.Collection.Path
	if cfg.Collection.GitURL != "" {
		checkout, err := gitsource.Checkout(cfg.Collection.GitURL, cfg.Collection.GitDir)
		if err != nil {
			return err
		}
		path = filepath.Join(checkout, cfg.Collection.Path)
	}

	db, err := openCollection(ctx, path, cfg.Collection.Init)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Collection opened", "path", path)

	aggregator := &failures.Aggregator{Pass: pass, Logger: logger}

	if !cfg.Server.Enabled {
		svc := report.NewService(db, aggregator, nil, logger)
		rep, err := svc.Run(ctx, cfg.Report.Days)
		if err != nil {
			return err
		}
		return render.Write(os.Stdout, format, rep)
	}

	svc := report.NewService(db, aggregator, report.NewCache(cfg.Server.CacheTTL), logger)
	return serve(cfg.Server.Addr, web.NewServer(svc, cfg.Report.Days, logger), logger)
}

func openCollection(ctx context.Context, path string, create bool) (*storage.DB, error) {
	if create {
		return storage.Create(ctx, storage.FileDSN(path, false))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection not found at %s (use --init to create one): %w", path, err)
	}
	return storage.OpenReadOnly(path)
}

func serve(addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-done:
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
