// Command infinidom runs the client runtime against a stream server.
//
// Usage:
//
//	infinidom -server http://localhost:8000 -path /          # load and print HTML
//	infinidom -server ... -path / -markdown                  # print as markdown
//	infinidom -config client.yaml -view                      # mirror into Chrome
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/jamesaudcent/infinidom"
	"github.com/jamesaudcent/infinidom/browserview"
)

func main() {
	configPath := flag.String("config", "", "path to client.yaml config file")
	server := flag.String("server", "", "stream server base URL (overrides config)")
	path := flag.String("path", "/", "initial path to load")
	sessionDB := flag.String("session-db", "", "SQLite file for the session token (overrides config)")
	markdown := flag.Bool("markdown", false, "print the loaded page as markdown instead of HTML")
	view := flag.Bool("view", false, "mirror the page into a Chrome tab and stay attached")
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

	if err := run(ctx, logger, *configPath, *server, *path, *sessionDB, *markdown, *view); err != nil {
		logger.Error("infinidom: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, server, path, sessionDB string, markdown, view bool) error {
	cfg := &infinidom.Config{}
	if configPath != "" {
		loaded, err := infinidom.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if server != "" {
		cfg.ServerURL = server
		cfg.PageURL = ""
	}
	if sessionDB != "" {
		cfg.SessionDB = sessionDB
	}

	opts := []infinidom.Option{infinidom.WithLogger(logger)}
	if view {
		opts = append(opts, infinidom.WithView(browserview.New(browserview.WithLogger(logger))))
	} else {
		cfg.Renderer = infinidom.RendererTree
	}

	client, err := infinidom.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Start(ctx); err != nil {
		return err
	}
	if err := client.Load(ctx, path); err != nil {
		return err
	}

	if view {
		// Stay attached: the mirror feeds interactions until interrupted.
		<-ctx.Done()
		return nil
	}

	doc, err := client.HTML()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if markdown {
		conv := converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
		md, err := conv.ConvertString(doc, converter.WithDomain(cfg.ServerURL))
		if err != nil {
			return fmt.Errorf("markdown: %w", err)
		}
		fmt.Println(strings.TrimSpace(md))
		return nil
	}

	fmt.Println(doc)
	return nil
}
