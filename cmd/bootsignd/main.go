// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

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

	"github.com/bureau-foundation/bootsign/backend"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/lib/process"
	"github.com/bureau-foundation/bootsign/lib/version"
	"github.com/bureau-foundation/bootsign/service"
)

// shutdownTimeout bounds how long Close waits for running jobs and
// module teardown after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		workers     int
		warm        bool
		showVersion bool
	)
	flags := pflag.NewFlagSet("bootsignd", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "bootsign.yaml (default: $BOOTSIGN_CONFIG)")
	flags.StringVar(&socketPath, "socket", "", "override daemon.socket_path")
	flags.IntVar(&workers, "workers", 0, "override daemon.workers")
	flags.BoolVar(&warm, "warm", false, "initialize the interpreted backend at startup")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("bootsignd %s\n", version.Info())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Daemon.SocketPath = socketPath
	}
	if workers > 0 {
		cfg.Daemon.Workers = workers
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := service.New(cfg, service.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := daemon.Close(closeCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if !backend.Install(daemon.Backend) {
		return fmt.Errorf("interpreted backend already installed in this process")
	}
	if warm {
		daemon.Warm()
	}

	logger.Info("bootsignd starting",
		"version", version.Info(),
		"socket", cfg.Daemon.SocketPath,
		"workers", cfg.Daemon.Workers,
		"artifacts", cfg.Paths.Artifacts,
	)
	if err := daemon.Server().Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("bootsignd stopped")
	return nil
}
