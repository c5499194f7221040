// Command infinidom-dev serves a scripted operation stream so the client
// runtime can be exercised without the generator backend.
//
// Usage:
//
//	infinidom-dev -script site.yaml -addr :8000
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesaudcent/infinidom/devserver"
)

func main() {
	scriptPath := flag.String("script", "", "path to the YAML stream script")
	addr := flag.String("addr", ":8000", "listen address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *scriptPath, *addr); err != nil {
		logger.Error("infinidom-dev: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, scriptPath, addr string) error {
	if scriptPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	script, err := devserver.LoadScript(scriptPath)
	if err != nil {
		return err
	}

	srv := devserver.New(script, logger)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("infinidom-dev: serving", "addr", addr, "pages", len(script.Pages))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
