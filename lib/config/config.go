// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the cluster daemon configuration. One YAML file
// is the single source of truth — there are no environment fallbacks
// and no automatic discovery, which keeps deployments deterministic
// and auditable. The routing core never touches this package at
// runtime; it receives an already-validated Config value at startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Daemon holds process-wide settings.
	Daemon DaemonConfig `yaml:"daemon"`

	// MessageDirector configures the routing core. The director is
	// always enabled — a daemon without it has nothing to do.
	MessageDirector DirectorConfig `yaml:"message_director"`

	// EventLogger configures the optional event logger service.
	EventLogger EventLoggerConfig `yaml:"event_logger"`
}

// DaemonConfig holds process-wide settings.
type DaemonConfig struct {
	// Name identifies this daemon in logs and in event records. Useful
	// when several federated daemons log to one place.
	Name string `yaml:"name"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// DirectorConfig configures the message director core.
type DirectorConfig struct {
	// Bind is the address the director listens on for downstream
	// connections (e.g., "127.0.0.1:7199"). Failing to bind is the
	// daemon's only fatal startup error.
	Bind string `yaml:"bind"`

	// Upstream is the address of the parent message director, or empty
	// when this daemon is the cluster root. The upstream link is
	// retried forever with capped exponential backoff; while it is
	// down the director keeps routing between its own downstreams.
	Upstream string `yaml:"upstream"`

	// QueueDepth bounds each connection's outbound frame queue. A peer
	// that stalls past this depth triggers the overflow policy rather
	// than blocking routing to everyone else.
	QueueDepth int `yaml:"queue_depth"`

	// OverflowPolicy is what happens when a connection's outbound
	// queue is full: "disconnect" tears the connection down,
	// "drop-oldest" discards the oldest queued frame. Disconnect is
	// the default — a silently lossy bus corrupts object state
	// streams, while a disconnect is observable and triggers the
	// peer's post-removes.
	OverflowPolicy string `yaml:"overflow_policy"`
}

// EventLoggerConfig configures the event logger service.
type EventLoggerConfig struct {
	// Enabled starts the event logger inside this daemon.
	Enabled bool `yaml:"enabled"`

	// Channel is the bus channel the logger subscribes to. Services
	// address their event records here by convention.
	Channel uint64 `yaml:"channel"`

	// OutputDirectory is where log files are written.
	OutputDirectory string `yaml:"output_directory"`

	// RotateBytes rotates the current log file once it exceeds this
	// size. Zero disables rotation.
	RotateBytes int64 `yaml:"rotate_bytes"`

	// Compression is applied to rotated files: "zstd", "lz4", or
	// "none".
	Compression string `yaml:"compression"`
}

// Default returns the base configuration merged under the loaded file.
// The defaults make a single-process development cluster work with a
// config file that sets nothing but the bind address.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Name:     "otpd",
			LogLevel: "info",
		},
		MessageDirector: DirectorConfig{
			Bind:           "127.0.0.1:7199",
			QueueDepth:     512,
			OverflowPolicy: "disconnect",
		},
		EventLogger: EventLoggerConfig{
			Channel:     9999,
			RotateBytes: 64 * 1024 * 1024,
			Compression: "zstd",
		},
	}
}

// LoadFile loads configuration from path, merging over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Daemon.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level must be debug, info, warn, or error, got %q", c.Daemon.LogLevel))
	}

	if c.MessageDirector.Bind == "" {
		errs = append(errs, fmt.Errorf("message_director.bind is required"))
	}
	if c.MessageDirector.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("message_director.queue_depth must be positive, got %d", c.MessageDirector.QueueDepth))
	}
	switch c.MessageDirector.OverflowPolicy {
	case "disconnect", "drop-oldest":
	default:
		errs = append(errs, fmt.Errorf("message_director.overflow_policy must be disconnect or drop-oldest, got %q", c.MessageDirector.OverflowPolicy))
	}

	if c.EventLogger.Enabled {
		if c.EventLogger.OutputDirectory == "" {
			errs = append(errs, fmt.Errorf("event_logger.output_directory is required when the event logger is enabled"))
		}
		switch c.EventLogger.Compression {
		case "zstd", "lz4", "none":
		default:
			errs = append(errs, fmt.Errorf("event_logger.compression must be zstd, lz4, or none, got %q", c.EventLogger.Compression))
		}
		if c.EventLogger.RotateBytes < 0 {
			errs = append(errs, fmt.Errorf("event_logger.rotate_bytes must not be negative, got %d", c.EventLogger.RotateBytes))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
