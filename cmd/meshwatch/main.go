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

	"github.com/skobkin/meshwatch/internal/app"
	"github.com/skobkin/meshwatch/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run meshwatch", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: user config dir)")
	listen := flag.String("http", "", "enable the HTTP API on this address, e.g. 127.0.0.1:8080")
	dbPath := flag.String("db", "", "enable SQLite storage at this path")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.Name, app.BuildVersion())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx, app.Options{
		ConfigPath: *configPath,
		Override: func(cfg *config.AppConfig) {
			applyFlags(cfg, *listen, *dbPath, *logLevel)
		},
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	return rt.Run(ctx)
}

func applyFlags(cfg *config.AppConfig, listen, dbPath, logLevel string) {
	if listen = strings.TrimSpace(listen); listen != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Listen = listen
	}
	if dbPath = strings.TrimSpace(dbPath); dbPath != "" {
		cfg.Storage.Enabled = true
		cfg.Storage.Path = dbPath
	}
	if logLevel = strings.TrimSpace(logLevel); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
