// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"fmt"
	"net"
	"sync"
)

// OverflowPolicy is what happens when a connection's bounded outbound
// queue is full.
type OverflowPolicy int

const (
	// OverflowDisconnect tears the connection down. The default: a
	// lost frame in an object state stream is silent corruption, a
	// disconnect is observable and fires the peer's post-removes.
	OverflowDisconnect OverflowPolicy = iota

	// OverflowDropOldest discards the oldest queued frame to make
	// room. For deployments that prefer a lossy-but-stable bus.
	OverflowDropOldest
)

// ParseOverflowPolicy parses the config representation.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch name {
	case "disconnect":
		return OverflowDisconnect, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", name)
	}
}

// conn is one transport-level link to a participant: a downstream
// service, or the single upstream federation link. The reader
// goroutine (Director.runReader) deframes inbound datagrams; the
// writer goroutine here drains the bounded outbound queue. Routing
// never writes to the transport directly — it enqueues, so a stalled
// peer blocks only its own writer.
type conn struct {
	handle    Handle
	transport net.Conn
	upstream  bool
	policy    OverflowPolicy

	// queue carries fully encoded frames to the writer goroutine. It
	// is never closed; the writer exits via closed.
	queue chan []byte

	// closed is closed exactly once when teardown begins. After that,
	// enqueue drops silently and both goroutines wind down.
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(handle Handle, transport net.Conn, upstream bool, queueDepth int, policy OverflowPolicy) *conn {
	return &conn{
		handle:    handle,
		transport: transport,
		upstream:  upstream,
		policy:    policy,
		queue:     make(chan []byte, queueDepth),
		closed:    make(chan struct{}),
	}
}

// enqueue hands a frame to the writer goroutine without blocking. The
// returned value is false only when the queue is full under the
// disconnect policy — the caller must then tear the connection down.
// Enqueueing to a connection mid-teardown is a clean drop.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}

	select {
	case c.queue <- frame:
		return true
	default:
	}

	switch c.policy {
	case OverflowDropOldest:
		// Make room by discarding the oldest frame. If the writer
		// drained the queue in the meantime and it refilled, dropping
		// the new frame instead is equally within policy.
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- frame:
		default:
		}
		return true
	default:
		return false
	}
}

// runWriter drains the outbound queue onto the transport. Runs in its
// own goroutine for the connection's lifetime. onFailure is invoked
// (once) when a write fails; it must not block.
func (c *conn) runWriter(onFailure func(error)) {
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.queue:
			if _, err := c.transport.Write(frame); err != nil {
				onFailure(err)
				return
			}
		}
	}
}

// close begins teardown: marks the connection closed and closes the
// transport, which unblocks any in-flight read or write. Idempotent.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.transport.Close()
	})
}
