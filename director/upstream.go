// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"context"
	"net"
	"time"
)

// Upstream reconnect backoff: starts at initialBackoff, doubles per
// consecutive failure, capped at maxBackoff, reset on success. Retries
// are unbounded — a federated director is not whole without its
// parent, but it keeps routing between its own downstreams during the
// outage rather than halting.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// maintainUpstream dials the parent director and keeps the link alive
// until ctx is cancelled. Each time the link comes up, the director's
// current subscription state is replayed onto it, so the parent
// resumes routing the right traffic down after an outage.
func (d *Director) maintainUpstream(ctx context.Context) {
	dialer := &net.Dialer{}
	backoff := initialBackoff

	for ctx.Err() == nil {
		transport, err := dialer.DialContext(ctx, "tcp", d.upstreamTo)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("upstream dial failed, will retry",
				"upstream", d.upstreamTo,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-d.clock.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		if ctx.Err() != nil {
			transport.Close()
			return
		}

		backoff = initialBackoff
		c := d.register(transport, true)
		d.replaySubscriptions(c)
		d.logger.Info("upstream link established", "upstream", d.upstreamTo)

		select {
		case <-c.closed:
			d.logger.Warn("upstream link lost, reconnecting", "upstream", d.upstreamTo)
		case <-ctx.Done():
			d.teardown(c, nil)
			return
		}
	}
}

// replaySubscriptions opens every channel and range with at least one
// local subscriber on a freshly connected upstream link.
func (d *Director) replaySubscriptions(upstream *conn) {
	d.mu.RLock()
	frames := make([][]byte, 0, len(d.channels.subscribers)+len(d.ranges.refs))
	for channel := range d.channels.subscribers {
		frames = append(frames, controlOpenChannel(channel))
	}
	for rng := range d.ranges.refs {
		frames = append(frames, controlOpenRange(rng))
	}
	d.mu.RUnlock()

	for _, frame := range frames {
		if !upstream.enqueue(frame) {
			go d.teardown(upstream, nil)
			return
		}
	}
}
