// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package service assembles the daemon's services from configuration.
// The set is closed: the message director is always present, the event
// logger is optional. There is no runtime registration; adding a
// service means adding a variant here.
package service

import (
	"context"
	"log/slog"
	"net"

	"github.com/Max-Rodriguez/otp/director"
	"github.com/Max-Rodriguez/otp/eventlogger"
	"github.com/Max-Rodriguez/otp/lib/clock"
	"github.com/Max-Rodriguez/otp/lib/config"
)

// Service is one long-running component of the daemon. Run blocks
// until ctx is cancelled or the service fails.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// ForConfig builds the enabled services. Construction does all the
// fallible setup — binding the director's listener, creating the event
// log directory — so a misconfigured daemon fails before any service
// starts.
func ForConfig(cfg *config.Config, logger *slog.Logger, clk clock.Clock) ([]Service, error) {
	var sink *eventlogger.EventLogger
	if cfg.EventLogger.Enabled {
		var err error
		sink, err = eventlogger.New(cfg.EventLogger, cfg.Daemon.Name, logger.With("service", "event-logger"), clk)
		if err != nil {
			return nil, err
		}
	}

	d, err := director.New(cfg.MessageDirector, logger.With("service", "message-director"), clk)
	if err != nil {
		return nil, err
	}

	services := []Service{&MessageDirector{director: d}}
	if sink != nil {
		services = append(services, &EventLogger{director: d, sink: sink})
	}
	return services, nil
}

// MessageDirector runs the routing core.
type MessageDirector struct {
	director *director.Director
}

func (s *MessageDirector) Name() string { return "message-director" }

// Addr returns the director's bound listen address.
func (s *MessageDirector) Addr() string { return s.director.Addr() }

func (s *MessageDirector) Run(ctx context.Context) error {
	return s.director.Serve(ctx)
}

// EventLogger runs the event logger attached to the in-process
// director over a pipe, skipping TCP for bus traffic that never
// leaves the daemon.
type EventLogger struct {
	director *director.Director
	sink     *eventlogger.EventLogger
}

func (s *EventLogger) Name() string { return "event-logger" }

func (s *EventLogger) Run(ctx context.Context) error {
	ours, theirs := net.Pipe()
	s.director.Attach(theirs)
	return s.sink.Run(ctx, ours)
}
