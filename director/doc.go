// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package director implements the message director: the channel-routing
// core every service in the cluster depends on. Services connect over
// length-prefixed TCP (or an in-process pipe), subscribe to channels
// and channel ranges with control datagrams, and the director fans
// every routed datagram out to the union of exact and range
// subscribers.
//
// The package is organized around the routing data flow:
//
//   - channels.go: exact channel subscriptions with a reverse index
//   - ranges.go: interval subscriptions and refcounted propagation
//   - postremove.go: per-connection dead-man's-switch datagram queues
//   - conn.go: one connection's outbound queue and writer goroutine
//   - director.go: accept loop, connection lifecycle, teardown
//   - route.go: the routing algorithm and the control-opcode handler
//   - upstream.go: the federation link and its reconnect loop
//
// Concurrency model: each connection gets a reader goroutine (frames
// in, routing decisions) and a writer goroutine (frames out, draining
// a bounded queue). The three registries are plain data structures
// guarded by one RWMutex on the Director — routing reads take the read
// lock, control mutations and teardown take the write lock. The lock
// is never held across network I/O, so a stalled peer cannot serialize
// the bus; its bounded queue fills and the overflow policy applies.
//
// Teardown is the critical transition: when a connection is lost, its
// handle is removed from the connection table and every registry in
// one write-locked step, and only then are its post-remove datagrams
// routed. No datagram can be routed to a handle once teardown has
// begun, and the post-remove flush observes the fully purged registry
// state.
package director
