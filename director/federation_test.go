// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/Max-Rodriguez/otp/lib/clock"
	"github.com/Max-Rodriguez/otp/lib/config"
	"github.com/Max-Rodriguez/otp/lib/testutil"
	"github.com/Max-Rodriguez/otp/wire"
)

// attachUpstream wires a pipe in as the director's upstream link and
// returns the parent's side, letting tests observe exactly what the
// director sends up the federation tree.
func attachUpstream(t *testing.T, d *Director) *peer {
	t.Helper()
	ours, theirs := net.Pipe()
	d.register(theirs, true)
	return newPeer(t, ours)
}

func channelPayload(channel wire.Channel) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(channel))
}

func rangePayload(min, max wire.Channel) []byte {
	payload := binary.BigEndian.AppendUint64(nil, uint64(min))
	return binary.BigEndian.AppendUint64(payload, uint64(max))
}

func requireControl(t *testing.T, p *peer, opcode wire.Opcode, payload []byte) {
	t.Helper()
	requireDatagram(t, p, wire.Datagram{Opcode: opcode, Payload: payload})
}

func TestFederationForwardsOnLocalMiss(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	local := attachPeer(t, d)
	sent := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     1,
		Recipients: []wire.Channel{500},
		Payload:    []byte("nobody home"),
	}
	local.send(sent)

	// Exactly one copy goes up; the sender hears nothing.
	requireDatagram(t, up, sent)
	testutil.RequireNoReceive(t, up.frames, quietWindow, "forwarded more than once")
	testutil.RequireNoReceive(t, local.frames, quietWindow, "sender is not subscribed")
}

func TestFederationNoForwardWhenLocallyResolved(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	b := attachPeer(t, d)
	a.subscribe(d, 500, 1)
	requireControl(t, up, wire.MDAddChannel, channelPayload(500))

	sent := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     1,
		Recipients: []wire.Channel{500},
		Payload:    []byte("resolved here"),
	}
	b.send(sent)

	requireDatagram(t, a, sent)
	testutil.RequireNoReceive(t, up.frames, quietWindow, "locally resolved datagram forwarded upstream")
}

func TestFederationPartialMissForwardsOnce(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	b := attachPeer(t, d)
	a.subscribe(d, 100, 1)
	requireControl(t, up, wire.MDAddChannel, channelPayload(100))

	// One recipient resolves locally, one does not: the local
	// subscriber is served and one copy still goes upstream for the
	// missed channel.
	sent := wire.Datagram{
		Opcode:     wire.SSObjectSetFields,
		Sender:     1,
		Recipients: []wire.Channel{100, 999},
		Payload:    []byte("split resolution"),
	}
	b.send(sent)

	requireDatagram(t, a, sent)
	requireDatagram(t, up, sent)
	testutil.RequireNoReceive(t, up.frames, quietWindow, "partial miss forwarded more than once")
}

func TestFederationUpstreamOriginatedNeverReturns(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	// Unresolvable datagram from the parent: delivering it back up
	// would loop forever, so it is dropped instead.
	up.send(wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     1,
		Recipients: []wire.Channel{777},
		Payload:    []byte("dead end"),
	})
	testutil.RequireNoReceive(t, up.frames, quietWindow, "upstream datagram forwarded back upstream")
}

func TestFederationUpstreamDatagramDeliveredLocally(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	a.subscribe(d, 900, 1)
	requireControl(t, up, wire.MDAddChannel, channelPayload(900))

	sent := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     2,
		Recipients: []wire.Channel{900},
		Payload:    []byte("from the parent"),
	}
	up.send(sent)
	requireDatagram(t, a, sent)
}

func TestFederationChannelPropagationOnBoundaries(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	b := attachPeer(t, d)

	// First local subscriber opens the channel upstream.
	a.subscribe(d, 700, 1)
	requireControl(t, up, wire.MDAddChannel, channelPayload(700))

	// Second subscriber and its departure are local-only events.
	b.subscribe(d, 700, 2)
	b.send(wire.Datagram{Opcode: wire.MDRemoveChannel, Payload: channelPayload(700)})
	waitFor(t, func() bool { return d.SubscriberCount(700) == 1 }, "second unsubscribe to apply")
	testutil.RequireNoReceive(t, up.frames, quietWindow, "non-boundary transition propagated")

	// Last subscriber leaving closes the channel upstream.
	a.send(wire.Datagram{Opcode: wire.MDRemoveChannel, Payload: channelPayload(700)})
	requireControl(t, up, wire.MDRemoveChannel, channelPayload(700))
}

func TestFederationRangePropagationRefcounted(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	b := attachPeer(t, d)

	a.addRange(d, 1000, 2000, 1)
	requireControl(t, up, wire.MDAddRange, rangePayload(1000, 2000))

	// The identical interval from a second connection is refcounted,
	// not re-opened.
	b.addRange(d, 1000, 2000, 2)
	b.send(wire.Datagram{Opcode: wire.MDRemoveRange, Payload: rangePayload(1000, 2000)})
	waitFor(t, func() bool { return d.RangeMatchCount(1000) == 1 }, "second range removal to apply")
	testutil.RequireNoReceive(t, up.frames, quietWindow, "refcounted range transition propagated")

	a.send(wire.Datagram{Opcode: wire.MDRemoveRange, Payload: rangePayload(1000, 2000)})
	requireControl(t, up, wire.MDRemoveRange, rangePayload(1000, 2000))
}

func TestFederationTeardownClosesSubscriptionsUpstream(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	a := attachPeer(t, d)
	a.subscribe(d, 800, 1)
	requireControl(t, up, wire.MDAddChannel, channelPayload(800))
	a.addRange(d, 3000, 4000, 1)
	requireControl(t, up, wire.MDAddRange, rangePayload(3000, 4000))

	// An abrupt disconnect must close everything the connection was
	// the last local holder of. Channels propagate before ranges.
	a.conn.Close()
	requireControl(t, up, wire.MDRemoveChannel, channelPayload(800))
	requireControl(t, up, wire.MDRemoveRange, rangePayload(3000, 4000))
}

func TestFederationUpstreamControlNotReflected(t *testing.T) {
	t.Parallel()
	d := startDirector(t, config.DirectorConfig{})
	up := attachUpstream(t, d)

	// The parent can subscribe on this director like any peer, but
	// that subscription must not be mirrored back to it.
	up.send(wire.Datagram{Opcode: wire.MDAddChannel, Payload: channelPayload(123)})
	waitFor(t, func() bool { return d.SubscriberCount(123) == 1 }, "upstream subscription to apply")
	testutil.RequireNoReceive(t, up.frames, quietWindow, "upstream subscription reflected back")
}

func TestFederationTwoDirectorsOverTCP(t *testing.T) {
	t.Parallel()
	parent := startDirector(t, config.DirectorConfig{})
	child := startDirector(t, config.DirectorConfig{Upstream: parent.Addr()})
	waitFor(t, func() bool { return child.ConnectionCount() >= 1 }, "child to dial its parent")

	childPeer := attachPeer(t, child)
	parentPeer := attachPeer(t, parent)

	// Downward: the child's subscription propagates to the parent, so
	// a datagram published at the parent reaches the child's peer.
	childPeer.subscribe(child, 100, 1)
	waitFor(t, func() bool { return parent.SubscriberCount(100) == 1 }, "subscription to propagate up")
	down := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     1,
		Recipients: []wire.Channel{100},
		Payload:    []byte("downhill"),
	}
	parentPeer.send(down)
	requireDatagram(t, childPeer, down)

	// Upward: a local miss at the child is forwarded to the parent and
	// resolved there.
	parentPeer.subscribe(parent, 200, 1)
	up := wire.Datagram{
		Opcode:     wire.SSObjectSetField,
		Sender:     2,
		Recipients: []wire.Channel{200},
		Payload:    []byte("uphill"),
	}
	childPeer.send(up)
	requireDatagram(t, parentPeer, up)
}

func TestFederationReplaysSubscriptionsOnReconnect(t *testing.T) {
	t.Parallel()
	parent := startDirector(t, config.DirectorConfig{})
	child := startDirector(t, config.DirectorConfig{Upstream: parent.Addr()})
	waitFor(t, func() bool { return child.ConnectionCount() >= 1 }, "child to dial its parent")

	childPeer := attachPeer(t, child)
	childPeer.subscribe(child, 100, 1)
	childPeer.addRange(child, 1000, 2000, 1)
	waitFor(t, func() bool {
		return parent.SubscriberCount(100) == 1 && parent.RangeMatchCount(1500) == 1
	}, "initial propagation")

	// Kill the link parent-side. The child reconnects (1s backoff on a
	// real clock) and must replay both subscriptions.
	parentSideConns := parent.ConnectionCount()
	parent.mu.RLock()
	var link *conn
	for _, c := range parent.conns {
		link = c
		break
	}
	parent.mu.RUnlock()
	parent.teardown(link, nil)
	waitFor(t, func() bool { return parent.ConnectionCount() == parentSideConns-1 }, "link teardown")

	waitFor(t, func() bool {
		return parent.SubscriberCount(100) == 1 && parent.RangeMatchCount(1500) == 1
	}, "subscription replay after reconnect")
}

func TestFederationReconnectKeepsRetrying(t *testing.T) {
	t.Parallel()

	// An address that refuses connections: bind, grab the port, close.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	refused := probe.Addr().String()
	probe.Close()

	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d, err := New(config.DirectorConfig{
		Bind:           "127.0.0.1:0",
		Upstream:       refused,
		QueueDepth:     8,
		OverflowPolicy: "disconnect",
	}, testLogger(), clk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "director shutdown")
	}()

	// Each failed dial parks the maintainer on a backoff timer; each
	// advance releases it into the next attempt. Three rounds proves
	// the retry loop never gives up.
	for i := 0; i < 3; i++ {
		clk.WaitForTimers(1)
		clk.Advance(maxBackoff)
	}
	clk.WaitForTimers(1)
}
