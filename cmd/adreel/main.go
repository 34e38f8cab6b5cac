// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command adreel serves ad previews and renders ad timelines to video files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/daemon"
	"github.com/ManuGH/adreel/internal/health"
	xglog "github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches the subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			return runConfigCLI(args[1:], stdout, stderr)
		case "render":
			return runRender(ctx, args[1:], stdout, stderr)
		case "serve":
			args = args[1:]
		}
	}
	return runServe(ctx, args, stdout, stderr)
}

// configPathFlag registers -config with ADREEL_CONFIG as its default.
func configPathFlag(fs *flag.FlagSet) *string {
	return fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to config file (YAML)")
}

// loadConfig loads the configuration and reconfigures the global logger with it.
func loadConfig(path string, stderr io.Writer) (config.AppConfig, error) {
	cfg, err := config.NewLoader(strings.TrimSpace(path), version.Version).Load()
	if err != nil {
		return cfg, err
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  stderr,
		Service: "adreel",
		Version: cfg.Version,
	})
	return cfg, nil
}

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adreel serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := configPathFlag(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	}

	xglog.Configure(xglog.Config{Level: "info", Output: stderr, Service: "adreel", Version: version.Version})
	logger := xglog.WithComponent("main")

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Str("config_path", *configPath).Msg("failed to load configuration")
		return 1
	}
	logger = xglog.WithComponent("main")
	logger.Info().
		Str("event", "config.loaded").
		Str("version", version.Version).
		Str("data_dir", cfg.DataDir).
		Str("listen", cfg.Server.Listen).
		Msg("starting adreel")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str("event", "startup.check_failed").Msg("startup checks failed")
		return 1
	}

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "bootstrap.failed").Msg("failed to assemble services")
		return 1
	}
	mgr, err := rt.Daemon()
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		logger.Error().Err(err).Msg("failed to create daemon")
		return 1
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	return 0
}
