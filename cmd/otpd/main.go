// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// otpd is the cluster daemon: it always runs the message director and,
// when configured, the event logger attached to it in-process. A
// cluster is otpd processes federated through their message directors'
// upstream links.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Max-Rodriguez/otp/lib/clock"
	"github.com/Max-Rodriguez/otp/lib/config"
	"github.com/Max-Rodriguez/otp/lib/version"
	"github.com/Max-Rodriguez/otp/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("otpd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the daemon configuration file (required)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if showVersion {
		fmt.Printf("otpd %s\n", version.Info())
		return nil
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Daemon.LogLevel),
	})).With("daemon", cfg.Daemon.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := service.ForConfig(cfg, logger, clock.Real())
	if err != nil {
		return err
	}

	logger.Info("otpd starting", "version", version.Info(), "services", len(services))

	// Run every service; the first failure cancels the rest. A clean
	// ctx cancellation is a normal shutdown, not a failure.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(services))
	for _, s := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errs <- fmt.Errorf("%s: %w", s.Name(), err)
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return err
	}
	logger.Info("otpd stopped")
	return nil
}

func parseLevel(level string) slog.Level {
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
