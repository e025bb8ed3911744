// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlogger persists cluster event records. The logger is an
// ordinary downstream bus participant: it subscribes to one well-known
// channel, decodes each datagram payload as a CBOR event body, and
// appends the wrapped record to a size-rotated log file. It holds no
// special status with the director beyond its subscription.
package eventlogger

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/Max-Rodriguez/otp/lib/clock"
	"github.com/Max-Rodriguez/otp/lib/codec"
	"github.com/Max-Rodriguez/otp/lib/config"
	"github.com/Max-Rodriguez/otp/lib/netutil"
	"github.com/Max-Rodriguez/otp/wire"
)

// EventLogger receives event datagrams from the bus and writes them to
// disk.
type EventLogger struct {
	channel wire.Channel
	daemon  string
	logger  *slog.Logger
	clk     clock.Clock
	sink    *logFile
}

// New opens the log file and returns a logger ready to Run. The first
// file is created eagerly so a misconfigured output directory fails at
// startup instead of on the first event.
func New(cfg config.EventLoggerConfig, daemon string, logger *slog.Logger, clk clock.Clock) (*EventLogger, error) {
	sink, err := openLogFile(cfg.OutputDirectory, cfg.RotateBytes, cfg.Compression, clk, logger)
	if err != nil {
		return nil, err
	}
	return &EventLogger{
		channel: wire.Channel(cfg.Channel),
		daemon:  daemon,
		logger:  logger,
		clk:     clk,
		sink:    sink,
	}, nil
}

// Run serves events from the bus connection until ctx is cancelled or
// the connection drops. On startup it subscribes to the event channel
// and registers a post-remove announcing its own loss, so an abrupt
// logger death is itself recorded by whatever replaces it. On graceful
// shutdown the post-remove is cleared first.
func (l *EventLogger) Run(ctx context.Context, bus net.Conn) error {
	defer l.sink.Close()

	if err := l.announce(bus); err != nil {
		bus.Close()
		return err
	}

	// Unblock the read loop on cancellation. The clear is best effort;
	// if the write fails the director fires the loss record, which is
	// exactly what it is for.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			farewell := wire.Datagram{Opcode: wire.MDClearPostRemoves}
			_ = wire.WriteDatagram(bus, &farewell)
			bus.Close()
		case <-finished:
		}
	}()

	reader := bufio.NewReader(bus)
	for {
		datagram, err := wire.ReadDatagram(reader)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if netutil.IsExpectedCloseError(err) {
				return fmt.Errorf("event bus connection closed")
			}
			return fmt.Errorf("reading from event bus: %w", err)
		}
		l.handle(&datagram)
	}
}

// announce subscribes to the event channel and registers the loss
// post-remove.
func (l *EventLogger) announce(bus net.Conn) error {
	subscribe := wire.Datagram{
		Opcode:  wire.MDAddChannel,
		Payload: binary.BigEndian.AppendUint64(nil, uint64(l.channel)),
	}
	if err := wire.WriteDatagram(bus, &subscribe); err != nil {
		return fmt.Errorf("subscribing to event channel: %w", err)
	}

	lost, err := l.lossDatagram()
	if err != nil {
		return err
	}
	postRemove := wire.Datagram{Opcode: wire.MDAddPostRemove, Payload: lost}
	if err := wire.WriteDatagram(bus, &postRemove); err != nil {
		return fmt.Errorf("registering loss post-remove: %w", err)
	}

	l.logger.Info("event logger subscribed", "channel", uint64(l.channel))
	return nil
}

// lossDatagram builds the encoded frame the director fires if this
// logger disappears without clearing it: an event on the logger's own
// channel, so a successor logger records the gap.
func (l *EventLogger) lossDatagram() ([]byte, error) {
	body, err := codec.Marshal(map[string]string{
		"type":   "event_logger.lost",
		"daemon": l.daemon,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding loss event: %w", err)
	}
	datagram := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Recipients: []wire.Channel{l.channel},
		Payload:    body,
	}
	return datagram.Encode()
}

// handle persists one event datagram. Malformed bodies are dropped and
// logged; a sender that cannot encode CBOR must not be able to stall
// everyone else's event trail.
func (l *EventLogger) handle(datagram *wire.Datagram) {
	record, err := encodeRecord(l.clk.Now(), l.daemon, uint64(datagram.Sender), datagram.Payload)
	if err != nil {
		l.logger.Warn("dropping malformed event record",
			"sender", uint64(datagram.Sender),
			"error", err,
		)
		return
	}
	if err := l.sink.Append(record); err != nil {
		l.logger.Error("writing event record failed", "error", err)
	}
}
