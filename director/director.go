// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/Max-Rodriguez/otp/lib/clock"
	"github.com/Max-Rodriguez/otp/lib/config"
	"github.com/Max-Rodriguez/otp/lib/netutil"
	"github.com/Max-Rodriguez/otp/wire"
)

// readBufferSize is the per-connection buffered reader size. Frames
// larger than this still work — bufio refills — it just bounds the
// syscall rate for the common small-datagram case.
const readBufferSize = 64 * 1024

// Director is the message director: it owns every connection, the
// three routing registries, and the optional upstream federation link.
type Director struct {
	bind        string
	upstreamTo  string
	queueDepth  int
	policy      OverflowPolicy

	logger *slog.Logger
	clock  clock.Clock

	listener net.Listener

	// mu guards everything below. Routing takes the read lock;
	// control mutations, connection registration, and teardown take
	// the write lock. Never held across network I/O.
	mu             sync.RWMutex
	channels       *ChannelRegistry
	ranges         *RangeRegistry
	postRemoves    *PostRemoveRegistry
	conns          map[Handle]*conn
	upstreamHandle Handle
	nextHandle     Handle

	wg sync.WaitGroup
}

// New creates a Director and binds its listen address. A bind failure
// is the only fatal startup condition — the bus cannot exist without
// its accept socket — so it surfaces here rather than in Serve.
func New(cfg config.DirectorConfig, logger *slog.Logger, clk clock.Clock) (*Director, error) {
	policy, err := ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("binding message director to %s: %w", cfg.Bind, err)
	}

	return &Director{
		bind:        cfg.Bind,
		upstreamTo:  cfg.Upstream,
		queueDepth:  cfg.QueueDepth,
		policy:      policy,
		logger:      logger,
		clock:       clk,
		listener:    listener,
		channels:    NewChannelRegistry(),
		ranges:      NewRangeRegistry(),
		postRemoves: NewPostRemoveRegistry(),
		conns:       make(map[Handle]*conn),
	}, nil
}

// Addr returns the bound listen address in host:port form. Useful
// when the configured bind uses port 0.
func (d *Director) Addr() string {
	return d.listener.Addr().String()
}

// Serve accepts downstream connections and maintains the upstream
// link until ctx is cancelled. On return every connection has been
// torn down and all goroutines have exited.
func (d *Director) Serve(ctx context.Context) error {
	if d.upstreamTo != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.maintainUpstream(ctx)
		}()
	}

	// Close the listener when ctx ends so Accept unblocks.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-ctx.Done()
		d.listener.Close()
	}()

	d.logger.Info("message director listening",
		"bind", d.Addr(),
		"upstream", d.upstreamTo,
		"queue_depth", d.queueDepth,
		"protocol", wire.ProtocolSignature(),
	)

	for {
		transport, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				break
			}
			d.logger.Warn("accept failed", "error", err)
			continue
		}
		d.register(transport, false)
	}

	// Tear down every remaining connection. Post-removes still fire —
	// a daemon shutdown is a disconnect like any other from the
	// cluster's point of view, and determinism matters more than the
	// few frames routed into the closing bus.
	for {
		d.mu.RLock()
		var any *conn
		for _, c := range d.conns {
			any = c
			break
		}
		d.mu.RUnlock()
		if any == nil {
			break
		}
		d.teardown(any, nil)
	}

	d.wg.Wait()
	return nil
}

// Attach registers an in-process connection, such as one end of a
// net.Pipe held by a service running inside the same daemon. The
// connection is a full bus participant — same framing, same control
// opcodes, same teardown semantics as a TCP peer.
func (d *Director) Attach(transport net.Conn) {
	d.register(transport, false)
}

// register creates the connection record, installs it in the table,
// and starts its reader and writer goroutines.
func (d *Director) register(transport net.Conn, upstream bool) *conn {
	d.mu.Lock()
	d.nextHandle++
	c := newConn(d.nextHandle, transport, upstream, d.queueDepth, d.policy)
	d.conns[c.handle] = c
	if upstream {
		d.upstreamHandle = c.handle
	}
	d.mu.Unlock()

	d.logger.Info("connection opened",
		"handle", c.handle,
		"remote", transport.RemoteAddr(),
		"upstream", upstream,
	)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		c.runWriter(func(err error) {
			d.teardown(c, err)
		})
	}()
	go func() {
		defer d.wg.Done()
		d.runReader(c)
	}()
	return c
}

// runReader deframes inbound datagrams and routes each one. Any read
// error — peer close, reset, torn frame, oversized frame — ends the
// connection.
func (d *Director) runReader(c *conn) {
	reader := bufio.NewReaderSize(c.transport, readBufferSize)
	for {
		datagram, err := wire.ReadDatagram(reader)
		if err != nil {
			d.teardown(c, err)
			return
		}
		d.route(c, &datagram)
	}
}

// teardown ends a connection. Exactly one caller wins; the rest
// return immediately. Under one write-locked step the handle is
// removed from the connection table and purged from all three
// registries, so no routing decision made afterwards can include it.
// The post-remove queue, drained in the same step, is then routed as
// if the departed connection had sent each datagram — against the
// already-purged registry state.
func (d *Director) teardown(c *conn, cause error) {
	d.mu.Lock()
	if _, ok := d.conns[c.handle]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.conns, c.handle)
	wasUpstream := c.handle == d.upstreamHandle
	if wasUpstream {
		d.upstreamHandle = 0
	}

	postRemoves := d.postRemoves.TakeAndRemove(c.handle)
	emptiedChannels := d.channels.RemoveConnection(c.handle)
	releasedRanges := d.ranges.RemoveConnection(c.handle)
	d.mu.Unlock()

	c.close()

	if cause != nil && !netutil.IsExpectedCloseError(cause) {
		d.logger.Warn("connection failed", "handle", c.handle, "error", cause)
	}
	d.logger.Info("connection closed",
		"handle", c.handle,
		"upstream", wasUpstream,
		"post_removes", len(postRemoves),
	)

	// Closing subscriptions the departed connection was the last local
	// holder of keeps the upstream's view of this daemon accurate.
	if !wasUpstream {
		for _, channel := range emptiedChannels {
			d.sendUpstream(controlCloseChannel(channel))
		}
		for _, rng := range releasedRanges {
			d.sendUpstream(controlCloseRange(rng))
		}
	}

	for _, frame := range postRemoves {
		datagram, err := wire.Decode(frame)
		if err != nil {
			// Add validated the frame; a decode failure here means
			// registry corruption, which is worth a loud log but not
			// a crash mid-teardown.
			d.logger.Error("post-remove frame failed to decode", "handle", c.handle, "error", err)
			continue
		}
		d.route(c, &datagram)
	}
}

// sendUpstream enqueues a frame on the upstream link, if one is
// connected. Silent no-op otherwise — the reconnect path replays full
// subscription state when the link returns.
func (d *Director) sendUpstream(frame []byte) {
	d.mu.RLock()
	upstream := d.conns[d.upstreamHandle]
	d.mu.RUnlock()
	if upstream == nil {
		return
	}
	if !upstream.enqueue(frame) {
		go d.teardown(upstream, fmt.Errorf("upstream outbound queue overflow"))
	}
}

// SubscriberCount returns the number of connections exactly subscribed
// to the channel. Introspection for logs and tests; range matches are
// not counted.
func (d *Director) SubscriberCount(channel wire.Channel) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels.SubscribersOf(channel))
}

// RangeMatchCount returns the number of connections holding a range
// that covers the channel. Introspection for logs and tests.
func (d *Director) RangeMatchCount(channel wire.Channel) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ranges.Matching(channel, make(map[Handle]struct{}))
}

// ConnectionCount returns the number of live connections, the
// upstream link included.
func (d *Director) ConnectionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
