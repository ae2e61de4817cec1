// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command resourced runs the resource compilation server: it accepts
// client connections, watches the raw resource tree for changes, and
// drives the compilation/packaging dispatch loop described in SPEC_FULL.md.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/resourced-io/resourced/internal/compiler"
	"github.com/resourced-io/resourced/internal/dispatch"
	"github.com/resourced-io/resourced/internal/fswatch"
	"github.com/resourced-io/resourced/internal/netserver"
	"github.com/resourced-io/resourced/internal/packaging"
	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/resourced-io/resourced/internal/task"
	"github.com/resourced-io/resourced/lib/clock"
	"github.com/resourced-io/resourced/lib/config"
	"github.com/resourced-io/resourced/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		listenAddr   string
		logLevel     string
		compilerTags []string
	)

	flags := pflag.NewFlagSet("resourced", pflag.ExitOnError)
	flags.StringVar(&configPath, "config", "", "path to resourced.yaml (overrides RESOURCED_CONFIG)")
	flags.StringVar(&listenAddr, "listen", "", "TCP listen address, overriding server.listen_address")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringSliceVar(&compilerTags, "compilable-type", nil, "resource type tag served by the built-in manifest compiler (repeatable)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.ListenAddress = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fatal assertion", "panic", r)
			os.Exit(1)
		}
	}()

	roots := resource.Roots{
		Raw:      cfg.Paths.Raw,
		Compiled: cfg.Paths.Compiled,
		Packaged: cfg.Paths.Packaged,
	}

	if len(compilerTags) == 0 {
		compilerTags = []string{"map", "anim", "tex", "mesh", "sound"}
	}
	registry := compiler.NewManifestRegistry(roots, compilerTags...)

	serverCtx := servercontext.New(roots, cfg.Compiler.ExecutablePath, registry)

	watcher, err := fswatch.New(cfg.Paths.Raw)
	if err != nil {
		return fmt.Errorf("starting file watcher on %s: %w", cfg.Paths.Raw, err)
	}

	network, err := netserver.Listen(cfg.Server.ListenAddress, logger)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("listening on %s: %w", cfg.Server.ListenAddress, err)
	}

	pool := task.NewPool(cfg.Server.Workers, cfg.Server.Workers*4)
	reqRegistry := request.NewRegistry()
	pkgSession := packaging.NewSession()

	d := dispatch.New(
		serverCtx,
		pool,
		reqRegistry,
		pkgSession,
		watcher,
		network,
		clock.Real(),
		logger,
		nil, // statically required resources: supplied by the engine/game bootstrap, out of scope per spec §1
	)

	logger.Info("resourced starting",
		"listen", network.Addr(),
		"raw_root", cfg.Paths.Raw,
		"compiled_root", cfg.Paths.Compiled,
		"packaged_root", cfg.Paths.Packaged,
		"workers", cfg.Server.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Server.TickIntervalDuration())
	defer ticker.Stop()

runLoop:
	for {
		select {
		case <-ctx.Done():
			break runLoop
		case <-ticker.C:
			d.Update()
		}
	}

	logger.Info("resourced shutting down")
	d.Shutdown()
	logger.Info("resourced stopped")

	return nil
}

func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	return config.Load()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
